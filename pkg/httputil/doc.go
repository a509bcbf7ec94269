// Package httputil carries the JSON plumbing shared by the identity API
// handlers: response writers that emit the service's stable error-code body
// shape, a bounded request-body decoder, and the outermost middleware
// (panic recovery, request-size cap) applied to every route.
//
// Error responses always have the form
//
//	{"error": "<code>"}
//
// where <code> is a machine-readable string such as "invalid_token" or
// "rate_limited". Handlers never put free-form error text on the wire;
// detail goes to the logs.
package httputil
