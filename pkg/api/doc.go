// Package api defines the public surface of the constellation runtime: the
// Activity contract, activity identifiers, events, submission options,
// configuration, and the tagged error types every operation returns.
//
// Application code usually imports the root constellation package, which
// re-exports everything here; api exists so internal packages and external
// callers share one set of types without import cycles.
package api
