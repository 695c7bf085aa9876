package scan

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs afero.Fs, path, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
}

func TestScan_MissingRootIsFatal(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Scan(fs, "/repo")
	require.Error(t, err)
	var se *ScannerError
	require.ErrorAs(t, err, &se)
}

func TestScan_EpicsAndStories(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/repo/stories", 0o755))

	writeFile(t, fs, "/repo/epic-1.md", "# Epic 1: Bootstrap\n\nSome body.\n")
	writeFile(t, fs, "/repo/epics.md", "# Epics Index\n\nShould be skipped.\n")
	writeFile(t, fs, "/repo/stories/1-1-setup.md", ""+
		"# Story 1.1: Setup\n"+
		"Status: drafted\n\n"+
		"## Acceptance Criteria\n"+
		"1. First thing\n"+
		"- Second thing\n\n"+
		"## Tags\n"+
		"infra, setup\n")
	writeFile(t, fs, "/repo/stories/1-1-setup-context.md", "# context, should be excluded\n")

	res, err := Scan(fs, "/repo")
	require.NoError(t, err)
	require.Empty(t, res.Warnings)

	require.Len(t, res.Epics, 1)
	assert.Equal(t, 1, res.Epics[0].Number)
	assert.Equal(t, "Bootstrap", res.Epics[0].Title)

	require.Len(t, res.Stories, 1)
	st := res.Stories[0]
	assert.Equal(t, 1, st.Epic)
	assert.Equal(t, 1, st.Number)
	assert.Equal(t, "Setup", st.Title)
	assert.Equal(t, "drafted", st.Status)
	assert.Equal(t, []string{"First thing", "Second thing"}, st.AcceptanceCriteria)
	assert.Equal(t, []string{"infra", "setup"}, st.Tags)
}

func TestScan_MalformedFileDegradesToWarning(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/repo/stories", 0o755))
	writeFile(t, fs, "/repo/stories/1-1-bad.md", "no header here\n")

	res, err := Scan(fs, "/repo")
	require.NoError(t, err)
	require.Empty(t, res.Stories)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "no story header")
}

func TestNormalise_CRLFAndTrailingWhitespace(t *testing.T) {
	a := Normalise([]byte("line one  \r\nline two\t\r\n"))
	b := Normalise([]byte("line one\nline two\n"))
	assert.Equal(t, b, a)
}

func TestHash_StableUnderNormalisation(t *testing.T) {
	h1 := Hash([]byte("hello \r\nworld\r\n"))
	h2 := Hash([]byte("hello\nworld\n"))
	assert.Equal(t, h1, h2)
}

func TestHash_Idempotent(t *testing.T) {
	raw := []byte("# Epic 1: Bootstrap\r\n  trailing space \r\n")
	once := Normalise(raw)
	twice := Normalise([]byte(once))
	assert.Equal(t, once, twice)
}

func TestParseSprintStatus_PreservesOrderAndRetrospective(t *testing.T) {
	body := `
development_status:
  epic-1: in-progress
  1-1-setup: done
  1-2-wire: ready-for-dev
  epic-1-retrospective: pending
`
	status, err := ParseSprintStatusBytes([]byte(body))
	require.NoError(t, err)

	got, ok := status.StatusFor("1-1-setup")
	require.True(t, ok)
	assert.Equal(t, "done", got)

	retro, ok := status.RetrospectiveFor(1)
	require.True(t, ok)
	assert.Equal(t, "pending", retro)

	assert.Equal(t, []string{"1-1-setup", "1-2-wire"}, status.StoryKeysForEpic(1))
}
