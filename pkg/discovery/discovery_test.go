package discovery

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_BaselineRunHasEmptyChanges(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/repo/stories", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/repo/epic-1.md", []byte("# Epic 1: Bootstrap\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/repo/stories/1-1-setup.md", []byte("# Story 1.1: Setup\nStatus: drafted\n"), 0o644))

	idx, warnings, err := Build(fs, "/repo", nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, idx.Changes.Added)
	assert.Empty(t, idx.Changes.Modified)
	assert.Empty(t, idx.Changes.Deleted)
	assert.Contains(t, idx.Epics, "epic-1")
	assert.Contains(t, idx.Stories, "1-1-setup")
}

func TestBuild_DiffPartitionsKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/repo/stories", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/repo/epic-1.md", []byte("# Epic 1: Bootstrap\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/repo/stories/1-1-setup.md", []byte("# Story 1.1: Setup\nStatus: drafted\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/repo/stories/1-2-wire.md", []byte("# Story 1.2: Wire\nStatus: drafted\n"), 0o644))

	previous, _, err := Build(fs, "/repo", nil, time.Now())
	require.NoError(t, err)

	// modify 1-1, delete 1-2, add 1-3
	require.NoError(t, afero.WriteFile(fs, "/repo/stories/1-1-setup.md", []byte("# Story 1.1: Setup\nStatus: ready-for-dev\n"), 0o644))
	require.NoError(t, fs.Remove("/repo/stories/1-2-wire.md"))
	require.NoError(t, afero.WriteFile(fs, "/repo/stories/1-3-extra.md", []byte("# Story 1.3: Extra\nStatus: drafted\n"), 0o644))

	current, _, err := Build(fs, "/repo", previous, time.Now())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"1-3-extra"}, current.Changes.Added)
	assert.ElementsMatch(t, []string{"1-1-setup"}, current.Changes.Modified)
	assert.ElementsMatch(t, []string{"1-2-wire"}, current.Changes.Deleted)
}

func TestEpicKeyAndStoryKey(t *testing.T) {
	assert.Equal(t, "epic-3", EpicKey(3))
	assert.Equal(t, "3-1-setup", StoryKey(3, 1, "setup"))
}
