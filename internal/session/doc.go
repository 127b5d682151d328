// Package session owns the current credential and keeps it usable.
//
// A Manager is created once per process by the composition root and shared by
// every caller. It loads the stored credential at construction without any
// network traffic, then serves GetAccessToken from memory until the access
// token is within the safety margin of its expiry. At that point exactly one
// refresh runs, however many callers are waiting; they all observe its result.
//
// Refresh outcomes:
//
//   - success: the credential is replaced in memory and in the store
//   - terminal rejection (autherr.IsTerminal): the session ends, the store is
//     cleared and OnSessionEnded subscribers are told why
//   - anything else: the stale token is returned and the next access retries
//
// SignOut bumps a generation counter, so a refresh that completes after it is
// discarded rather than resurrecting the session.
package session
