// Package tokens covers the cryptographic edge of the identity service:
// resolving the process signing key, minting first-party access and refresh
// tokens, and validating inbound external assertions.
//
// Access tokens are RS256 JWTs with typ "at+jwt". When the caller requests
// workload federation the typ header downgrades to "JWT" for compatibility
// with the federation broker's parser; the decision is made before signing.
// Refresh tokens are opaque 64-byte random values and only their SHA-256
// digest leaves this package for storage.
package tokens
