// Package autherr defines the failure taxonomy shared by the authentication
// core: the identity client, the loopback listener, the credential store and
// the session manager all report failures with the types declared here.
//
// # Classification
//
// Every failure falls into one of three groups:
//
//   - Terminal: the session is no longer usable and the user must sign in
//     again (ProviderError with a 4xx auth status).
//   - Retryable: a later attempt may succeed (TransportError, ProviderError
//     with a 5xx, 408 or 429 status).
//   - Surfaced: neither terminal nor retryable; reported to the caller as-is
//     (ValidationError, DecodeError, flow errors, PersistenceError).
//
// IsTerminal and IsRetryable implement this classification on arbitrary
// (possibly wrapped) errors, and UserMessage renders a short sentence suitable
// for a sign-in form or CLI output.
//
// Components never retry on their own. Retry policy belongs to the session
// manager (lazily, on next access) or to the caller.
package autherr
