// Command goguard runs the credential recovery and login service.
//
//	goguard serve    HTTP API
//	goguard worker   delivers queued reset emails
//	goguard migrate  prints or applies the Postgres schema, or prunes attempt records
//	goguard check    validates config and prints the security report
//
// Settings come from GOGUARD_* environment variables, an optional .env file
// and the file named by -config.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/MrEthical07/goGuard/config"
	"github.com/MrEthical07/goGuard/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	configFile := fs.String("config", "", "path to a config file (yaml, json or toml)")
	envFile := fs.String("env-file", ".env", "dotenv file loaded before reading the environment")
	apply := fs.Bool("apply", false, "migrate: apply the schema instead of printing it")
	prune := fs.Bool("prune", false, "migrate: delete attempt records older than postgres.prune_retention")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		return 1
	}

	settings, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	log := logging.New(logging.Config{
		Level:   settings.App.LogLevel,
		Format:  settings.App.LogFormat,
		Service: settings.App.Name,
	}).With().Str("cmd", cmd).Logger()

	switch cmd {
	case "serve":
		err = serve(settings, log)
	case "worker":
		err = worker(settings, log)
	case "migrate":
		err = migrate(settings, *apply, *prune, log)
	case "check":
		err = check(settings, os.Stdout)
	default:
		usage()
		return 2
	}
	if err != nil {
		log.Error().Err(err).Msg("exiting")
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: goguard <serve|worker|migrate|check> [-config file] [-env-file file] [-apply] [-prune]")
}
