package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	docs map[string][]byte
}

func (f *fakeStore) Exists(name string) bool { _, ok := f.docs[name]; return ok }
func (f *fakeStore) Load(name string, out interface{}) error {
	return json.Unmarshal(f.docs[name], out)
}
func (f *fakeStore) Save(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if f.docs == nil {
		f.docs = make(map[string][]byte)
	}
	f.docs[name] = data
	return nil
}

func TestLoad_EmptyWhenAbsent(t *testing.T) {
	s := &fakeStore{}
	h, err := Load(s)
	require.NoError(t, err)
	assert.Empty(t, h.Entries)
}

func TestAppendAndFindAncestor(t *testing.T) {
	h := &History{Entries: make(map[string][]StateChange)}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.Append("1-1-setup", StateChange{From: "drafted", To: "ready-for-dev", Timestamp: now})
	h.Append("1-1-setup", StateChange{From: "ready-for-dev", To: "in-progress", Timestamp: now.Add(time.Hour)})

	ancestor, ok := h.FindAncestor("1-1-setup", "review", "Done")
	require.True(t, ok)
	assert.Equal(t, "in-progress", ancestor)

	ancestor2, ok := h.FindAncestor("1-1-setup", "in-progress", "ready-for-dev")
	require.True(t, ok)
	assert.Equal(t, "drafted", ancestor2)
}

func TestPrune_RemovesOldEntries(t *testing.T) {
	h := &History{Entries: make(map[string][]StateChange)}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.Append("1-1-setup", StateChange{To: "drafted", Timestamp: now.AddDate(0, 0, -100)})
	h.Append("1-1-setup", StateChange{To: "in-progress", Timestamp: now.AddDate(0, 0, -1)})

	h.Prune(90, now)
	assert.Len(t, h.Entries["1-1-setup"], 1)
	assert.Equal(t, "in-progress", h.Entries["1-1-setup"][0].To)
}
