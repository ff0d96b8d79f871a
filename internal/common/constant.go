// Package common contains shared constants, random helpers and the error
// taxonomy used across the stamp engine.
package common

const (
	// AuthorizationHeaderName carries the caller's bearer access token.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the token inside the Authorization header.
	BearerPrefix = "Bearer "
)
