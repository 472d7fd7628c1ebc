// Package auth provides JWT token handling for SwitchSync Core.
//
// Tokens are HS256-signed access tokens carrying the account identity.
// They are validated by signature and expiry only; no database lookup is
// needed on the hot path. The WebSocket endpoint and the REST API share
// the same claims.
package auth
