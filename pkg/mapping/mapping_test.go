package mapping

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseDoc = `
story_states:
  local_to_remote:
    drafted: Todo
    ready-for-dev: Todo
    in-progress: In Progress
    review: In Review
    done: Done
    wont-do: Cancelled
  remote_to_local:
    Todo: drafted
    "In Progress": in-progress
    "In Review": review
    Done: done
    Cancelled: wont-do
epic_states:
  local_to_remote:
    backlog: Backlog
    ready-for-dev: Todo
    in-progress: In Progress
    review: In Review
    done: Done
  remote_to_local:
    Backlog: backlog
    Todo: ready-for-dev
    "In Progress": in-progress
    "In Review": review
    Done: done
valid_transitions:
  drafted: [ready-for-dev]
  ready-for-dev: [in-progress]
  in-progress: [review]
  review: [done, in-progress]
context_aware_mapping:
  - content_type: story
    flag: context_file_exists
    state: Todo
    if_set: ready-for-dev
    if_unset: drafted
validation:
  strict_mode: false
history:
  retention_days: 90
`

func TestLocalToRemote(t *testing.T) {
	m, err := NewFromBytes([]byte(baseDoc))
	require.NoError(t, err)

	got, err := m.LocalToRemote("in-progress", Story)
	require.NoError(t, err)
	assert.Equal(t, "In Progress", got)
}

func TestRemoteToLocal_ContextAwareDisambiguation(t *testing.T) {
	m, err := NewFromBytes([]byte(baseDoc))
	require.NoError(t, err)

	withContext, err := m.RemoteToLocal("Todo", Story, map[string]bool{"context_file_exists": true})
	require.NoError(t, err)
	assert.Equal(t, "ready-for-dev", withContext)

	withoutContext, err := m.RemoteToLocal("Todo", Story, map[string]bool{"context_file_exists": false})
	require.NoError(t, err)
	assert.Equal(t, "drafted", withoutContext)

	// epics aren't covered by the story-only context rule.
	epicResult, err := m.RemoteToLocal("Todo", Epic, map[string]bool{"context_file_exists": true})
	require.NoError(t, err)
	assert.Equal(t, "ready-for-dev", epicResult)
}

func TestRoundTrip_WhereInvertible(t *testing.T) {
	m, err := NewFromBytes([]byte(baseDoc))
	require.NoError(t, err)

	for _, local := range []string{"in-progress", "review", "done"} {
		remote, err := m.LocalToRemote(local, Story)
		require.NoError(t, err)
		back, err := m.RemoteToLocal(remote, Story, nil)
		require.NoError(t, err)
		assert.Equal(t, local, back)
	}
}

func TestStrictMode_UnknownStateRaises(t *testing.T) {
	doc := strings.Replace(baseDoc, "strict_mode: false", "strict_mode: true", 1)
	m, err := NewFromBytes([]byte(doc))
	require.NoError(t, err)

	_, err = m.LocalToRemote("not-a-real-state", Story)
	require.Error(t, err)
	var me *MappingError
	require.ErrorAs(t, err, &me)
}

func TestValidateTransition(t *testing.T) {
	m, err := NewFromBytes([]byte(baseDoc))
	require.NoError(t, err)

	ok, reason := m.ValidateTransition("drafted", "ready-for-dev")
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = m.ValidateTransition("drafted", "done")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}
