package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	return s
}

func TestStore_New_CreatesOwnerOnlyDirs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s, err := New(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DirPermissions), info.Mode().Perm())

	info, err = os.Stat(s.BackupDir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DirPermissions), info.Mode().Perm())
}

func TestStore_SaveAndLoad_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := widget{Name: "epic-tracker", Count: 3}
	require.NoError(t, s.Save("widget", &want))
	assert.True(t, s.Exists("widget"))

	var got widget
	require.NoError(t, s.Load("widget", &got))
	assert.Equal(t, want, got)
}

func TestStore_Load_MissingDocument(t *testing.T) {
	s := newTestStore(t)
	var got widget
	err := s.Load("missing", &got)
	assert.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestStore_Save_CreatesBackupOfPreviousVersion(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("widget", &widget{Name: "v1"}))
	require.NoError(t, s.Save("widget", &widget{Name: "v2"}))

	entries, err := os.ReadDir(s.BackupDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_Load_CorruptedDocumentIsReported(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.docPath("widget"), []byte("{not json"), 0o600))

	var got widget
	err := s.Load("widget", &got)
	require.Error(t, err)
	assert.True(t, IsCorrupted(err))
}

func TestStore_PruneBackups_RemovesOldEntries(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("widget", &widget{Name: "v1"}))
	require.NoError(t, s.Save("widget", &widget{Name: "v2"}))

	s.clock = func() time.Time { return time.Now().Add(BackupRetention + time.Hour) }
	require.NoError(t, s.PruneBackups())

	entries, err := os.ReadDir(s.BackupDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSyncState_AppendOperation_BoundsHistory(t *testing.T) {
	state := &SyncState{}
	for i := 0; i < MaxOperationHistory+10; i++ {
		state.AppendOperation(OperationRecord{ID: "op", Timestamp: time.Now()})
	}
	assert.Len(t, state.Operations, MaxOperationHistory)
}

func TestSyncState_AppendError_BoundsHistory(t *testing.T) {
	state := &SyncState{}
	for i := 0; i < MaxErrorHistory+10; i++ {
		state.AppendError(ErrorRecord{Message: "boom", Timestamp: time.Now()})
	}
	assert.Len(t, state.Errors, MaxErrorHistory)
}

func TestStore_LoadSyncState_DefaultsWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	state, err := s.LoadSyncState()
	require.NoError(t, err)
	assert.Nil(t, state.LastSync)
	assert.Empty(t, state.Operations)
}

func TestStore_SaveSyncState_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	state := &SyncState{}
	state.MarkSynced(now)
	state.AppendOperation(OperationRecord{ID: "op-1", Action: "create", ContentKey: "epic-1", Outcome: "success", Timestamp: now})
	require.NoError(t, s.SaveSyncState(state))

	loaded, err := s.LoadSyncState()
	require.NoError(t, err)
	require.NotNil(t, loaded.LastSync)
	assert.Equal(t, now, loaded.LastSync.UTC())
	require.Len(t, loaded.Operations, 1)
	assert.Equal(t, "epic-1", loaded.Operations[0].ContentKey)
}
