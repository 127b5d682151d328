package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeep/internal/autherr"
)

func testCredential() *Credential {
	return &Credential{
		AccessToken:  "T1",
		RefreshToken: "R1",
		ExpiresAt:    time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC),
		UserID:       "u-1",
		Email:        "a@b.com",
		DisplayName:  "Ada",
	}
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "gatekeep", DefaultFileName))
	require.NoError(t, err)
	return store
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(testCredential()))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Equal(testCredential()))
	assert.Equal(t, "a@b.com", loaded.Email)
	assert.Equal(t, "Ada", loaded.DisplayName)
}

func TestFileStore_Permissions(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(testCredential()))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestFileStore_SaveLeavesNoTemporaryFiles(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(testCredential()))
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultFileName, entries[0].Name())
}

func TestFileStore_SaveRejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	err := store.Save(&Credential{AccessToken: "T1"})
	var perr *autherr.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "save", perr.Op)
}

func TestFileStore_LoadEmpty(t *testing.T) {
	store := newTestStore(t)

	cred, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileStore_LoadCorruptClearsStore(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "{not json"},
		{"token without expiry", `{"access_token":"T1","refresh_token":"R1"}`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0700))
			require.NoError(t, os.WriteFile(store.Path(), []byte(tt.content), 0600))

			cred, err := store.Load()
			assert.NoError(t, err)
			assert.Nil(t, cred)

			_, statErr := os.Stat(store.Path())
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "corrupt record should be removed")
		})
	}
}

func TestFileStore_LoadDegraded(t *testing.T) {
	store := newTestStore(t)
	cred := testCredential()
	cred.RefreshToken = ""
	require.NoError(t, store.Save(cred))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Degraded())
}

func TestFileStore_ClearIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(testCredential()))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	cred, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileStore_ConcurrentSaves(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Save(testCredential()))
		}()
	}
	wg.Wait()

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.Equal(testCredential()))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	cred, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)

	original := testCredential()
	require.NoError(t, store.Save(original))
	original.AccessToken = "mutated"

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "T1", loaded.AccessToken)

	require.NoError(t, store.Clear())
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStore_WatchObservesExternalChanges(t *testing.T) {
	store := newTestStore(t)
	other, err := NewFileStore(store.Path())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Credential, 10)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- store.watch(ctx, 20*time.Millisecond, func(cred *Credential) {
			select {
			case changes <- cred:
			default:
			}
		})
	}()

	// The watch is set up in the background, so keep writing until it is seen.
	var seen *Credential
	require.Eventually(t, func() bool {
		assert.NoError(t, other.Save(testCredential()))
		select {
		case seen = <-changes:
			return seen != nil
		default:
			return false
		}
	}, 5*time.Second, 100*time.Millisecond)
	assert.Equal(t, "T1", seen.AccessToken)

	require.NoError(t, other.Clear())
	require.Eventually(t, func() bool {
		for {
			select {
			case cred := <-changes:
				if cred == nil {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestFileStore_WatchBlocksUntilCancelled(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- store.Watch(ctx, func(*Credential) {})
	}()

	select {
	case err := <-watchErr:
		t.Fatalf("watch returned before cancel: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestFileStore_WatchFailsForUnusableDirectory(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o600))
	store, err := NewFileStore(filepath.Join(parent, "credential.json"))
	require.NoError(t, err)

	err = store.Watch(context.Background(), func(*Credential) {})
	assert.Error(t, err)
}
