// Package middleware protects HTTP routes with the session grants issued by
// goGuard.Engine.Authenticate.
//
// [RequireSession] reads the Authorization header, delegates verification to
// Engine.VerifySession and exposes the verified grant through
// [SessionFromContext]. It never parses tokens itself.
package middleware
