// Package httpapi exposes the recovery and login operations over HTTP with chi.
//
// Routes:
//
//	POST /recovery/request  {"identifier"}
//	POST /recovery/confirm  {"token","new_password"}
//	POST /login             {"identifier","password"}
//	GET  /healthz
//	GET  /metrics
//
// Response bodies are fixed strings. A reset request for an unknown
// identifier is byte-identical to one for a real account, and every login
// failure reads "Invalid credentials.".
package httpapi
