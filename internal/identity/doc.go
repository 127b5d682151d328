// Package identity is a stateless client for a GoTrue-style identity API
// (Supabase Auth) and for the OAuth token endpoint of the external provider
// used by interactive sign-in.
//
// Every operation is a single HTTP round trip. The client never retries and
// never persists anything; callers decide what to do with failures using the
// classification in package autherr:
//
//   - ValidationError: an argument was empty; no request was sent
//   - TransportError: the request did not complete (retryable)
//   - ProviderError: non-2xx answer; Terminal() for 4xx other than 408/429
//   - DecodeError: a 2xx answer that does not have the expected shape
//
// Interactive sign-in takes two legs. CodeExchanger swaps the authorization
// code (with client secret and PKCE verifier) for the provider's id_token and
// optionally verifies it with go-oidc; Client.ExchangeIDToken then trades that
// id_token for an identity API session.
package identity
