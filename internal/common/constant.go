// Package common contains shared constants and sentinel errors used across
// authcore components.
package common

// AuthorizationHeaderName carries the bearer token on HTTP requests and in
// gRPC metadata.
const AuthorizationHeaderName = "authorization"

// SessionTokenHeaderName carries the opaque session token for logout and
// session liveness checks.
const SessionTokenHeaderName = "X-Session-Token"
