// Package config loads gatekeep's configuration.
//
// Configuration is read from a single YAML file, by default
// ~/.config/gatekeep/config.yaml, decoded on top of the built-in defaults.
// Environment variables override file values afterwards:
//
//	GATEKEEP_PROVIDER_URL        provider.url        (fallback SUPABASE_URL)
//	GATEKEEP_API_KEY             provider.api_key    (fallback SUPABASE_API_KEY)
//	GATEKEEP_OAUTH_CLIENT_ID     oauth.client_id     (fallback GOOGLE_CLIENT_ID)
//	GATEKEEP_OAUTH_CLIENT_SECRET oauth.client_secret (fallback GOOGLE_CLIENT_SECRET)
//	GATEKEEP_OAUTH_REDIRECT_URI  oauth.redirect_uri  (fallback GOOGLE_REDIRECT_URI)
//	GATEKEEP_CREDENTIAL_FILE     session.credential_file
//	GATEKEEP_LOG_LEVEL           logging.level
//
// A missing file is not an error. Loading never validates; callers that need
// a usable provider call Validate, which reports every problem at once.
//
// Example config.yaml:
//
//	provider:
//	  url: https://project.supabase.co
//	  api_key: anon-key
//	  timeout: 30s
//	oauth:
//	  client_id: 1234.apps.googleusercontent.com
//	  client_secret: secret
//	  redirect_uri: http://localhost:53682/callback
//	session:
//	  safety_margin: 60s
//	  watch: true
//	logging:
//	  level: info
//	  format: text
package config
