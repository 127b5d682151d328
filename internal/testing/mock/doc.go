// Package mock provides test doubles shared by the package tests.
//
// IdentityProvider is an httptest server that speaks the subset of the
// GoTrue-style identity API the client uses (sign-up, the password,
// refresh_token and id_token grants, logout, recover, user update, verify and
// resend) plus an OAuth authorize/token endpoint pair that issues id_tokens.
// Every endpoint counts its calls and can be made to fail:
//
//	idp := mock.NewIdentityProvider(mock.IdentityProviderConfig{})
//	defer idp.Close()
//	idp.AddUser("a@b.com", "secret1", "Ada")
//	idp.FailNext(mock.EndpointRefresh, mock.Failure{Status: 503})
//
// MockClock lets tests move credentials across their refresh threshold without
// sleeping.
package mock
