// Package credential holds the unit of authentication state, the Credential,
// and its durable store.
//
// A Credential is immutable once built: refreshes replace it wholesale rather
// than patching fields, so readers always see either the old or the new value.
//
// # Storage
//
// FileStore keeps one credential per local user in a JSON file, by default
//
//	~/.config/gatekeep/credential.json
//
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so no partial record is ever visible. The directory is
// created 0700 and the file 0600. A record that cannot be parsed is treated as
// absent and removed.
//
// FileStore.Watch reports credentials written or removed by other processes,
// e.g. a second CLI invocation signing in or out.
package credential
