package notify

import (
	"context"

	goGuard "github.com/MrEthical07/goGuard"
)

// Discard accepts and drops every message.
type Discard struct{}

func (Discard) Send(context.Context, goGuard.Message) error { return nil }

// Func adapts a function to goGuard.Notifier.
type Func func(ctx context.Context, msg goGuard.Message) error

func (f Func) Send(ctx context.Context, msg goGuard.Message) error {
	return f(ctx, msg)
}

// Direct delivers synchronously through a Mailer. Use it only where no queue
// is available; the engine then waits on the relay.
type Direct struct {
	Mailer Mailer
}

func (d Direct) Send(ctx context.Context, msg goGuard.Message) error {
	return d.Mailer.SendPasswordReset(ctx, msg)
}

var (
	_ goGuard.Notifier = (*Queue)(nil)
	_ goGuard.Notifier = Discard{}
	_ goGuard.Notifier = Func(nil)
	_ goGuard.Notifier = Direct{}
)
