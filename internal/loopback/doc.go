// Package loopback completes an OAuth authorization-code grant from a
// command-line process by briefly serving the redirect URI on the local
// machine.
//
// For every attempt the Listener:
//
//  1. creates a PendingRequest with fresh random state, nonce and PKCE verifier
//  2. binds the host:port of the configured redirect URI
//  3. hands the authorization URL to the browser launcher
//  4. accepts exactly one request on the redirect path, checks state and
//     extracts the code, answering with a confirmation or failure page
//  5. unbinds, whatever the outcome
//
// The wait ends with the code, a *autherr.RedirectError, a *autherr.TimeoutError
// (default 120s) or autherr.ErrCancelled when the caller's context is done.
// Requests to other paths get 404 and do not end the wait.
package loopback
