package session

import (
	"context"

	"gatekeep/internal/credential"
	"gatekeep/pkg/logging"
)

// StoreWatcher is implemented by stores that can report changes made by
// other processes.
type StoreWatcher interface {
	Watch(ctx context.Context, onChange credential.ChangeFunc) error
}

// WatchStore follows changes other processes make to the store and blocks
// until ctx is done: a credential written elsewhere is adopted, a removed one
// ends the local session. It fails if the store cannot be watched and returns
// at once for stores that do not support watching.
func (m *Manager) WatchStore(ctx context.Context) error {
	watcher, ok := m.store.(StoreWatcher)
	if !ok {
		logging.Debug("Session", "Credential store does not support watching")
		return nil
	}
	return watcher.Watch(ctx, m.applyExternalChange)
}

func (m *Manager) applyExternalChange(cred *credential.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case cred == nil && m.cred == nil:
		return
	case cred == nil:
		logging.Info("Session", "Signed out by another process")
		m.cred = nil
	case cred.Equal(m.cred):
		return
	default:
		logging.Info("Session", "Adopted session for %s written by another process", cred.Email)
		m.cred = cred
	}
	m.generation++
}
