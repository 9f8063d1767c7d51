// Package jwt signs and verifies the session grants returned after a successful
// login. A grant binds an account id to a fresh session id with a short expiry;
// establishing the actual session (cookies, storage) is left to the caller.
package jwt
