package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotAndRestore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("content_index", &widget{Name: "a", Count: 1}))
	require.NoError(t, s.Save("conflicts/pending", &widget{Name: "b", Count: 2}))

	label, err := s.Snapshot()
	require.NoError(t, err)

	require.NoError(t, s.Save("content_index", &widget{Name: "corrupted", Count: 99}))
	require.NoError(t, s.Save("conflicts/pending", &widget{Name: "corrupted", Count: 98}))

	require.NoError(t, s.Restore(label))

	var w widget
	require.NoError(t, s.Load("content_index", &w))
	assert.Equal(t, "a", w.Name)

	var w2 widget
	require.NoError(t, s.Load("conflicts/pending", &w2))
	assert.Equal(t, "b", w2.Name)
}

func TestLatestSnapshot_ReturnsMostRecentLabel(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("content_index", &widget{Name: "a"}))

	label1, err := s.Snapshot()
	require.NoError(t, err)

	// force a distinguishable later timestamp
	later := s.clock().Add(time.Hour)
	s.clock = func() time.Time { return later }
	label2, err := s.Snapshot()
	require.NoError(t, err)
	require.NotEqual(t, label1, label2)

	latest, ok, err := s.LatestSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, label2, latest)

	_, err = os.Stat(filepath.Join(s.BackupDir(), latest))
	require.NoError(t, err)
}
