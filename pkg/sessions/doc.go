// Package sessions manages issued credential state: the shared issuing tail
// (permission recomputation, token minting, refresh-token persistence), the
// refresh-token lifecycle with rotation and full state re-validation, and
// organization switching.
//
// The one invariant everything here serves: a refreshed or switched token
// never inherits authority from its predecessor. Every issuance recomputes
// permissions from the store, and every refresh re-reads the user and
// membership before anything is signed.
package sessions
