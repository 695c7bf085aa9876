package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStory_DerivesParentFromKey(t *testing.T) {
	m := New()
	m.SetEpic("epic-1", "WID-360")
	m.SetStory("1-1-setup", "WID-361", "")

	assert.Equal(t, "epic-1", m.Parents["1-1-setup"])
	assert.Equal(t, []string{"1-1-setup"}, m.Children["epic-1"])
	require.NoError(t, m.Validate())
}

func TestSetStory_NoDuplicateChildren(t *testing.T) {
	m := New()
	m.SetEpic("epic-1", "WID-360")
	m.SetStory("1-1-setup", "WID-361", "")
	m.SetStory("1-1-setup", "WID-361", "")

	assert.Len(t, m.Children["epic-1"], 1)
}

func TestValidate_FailsOnMissingParentEpic(t *testing.T) {
	m := New()
	m.Parents["1-1-setup"] = "epic-1"
	require.Error(t, m.Validate())
}
