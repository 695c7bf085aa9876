package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chambrid/bmad-sync/pkg/sync"
)

func sampleReport() *sync.Report {
	return &sync.Report{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Summary:   sync.Summary{Create: 1, Update: 1, Total: 2},
		Operations: []sync.Operation{
			{Action: sync.ActionCreate, ContentKey: "epic-1", ContentType: sync.ContentEpic, Title: "Epic One", Epic: 1},
			{Action: sync.ActionUpdate, ContentKey: "1-1-setup", ContentType: sync.ContentStory, Title: "Setup", IssueID: "WID-361", Epic: 1, Story: 1},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))
	assert.Contains(t, buf.String(), `"content_key": "epic-1"`)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "action,content_key,content_type,reason,title,issue_id,mapped_state,epic,story")
	assert.Contains(t, out, "create,epic-1,epic,,Epic One,,,1,")
	assert.Contains(t, out, "update,1-1-setup,story,,Setup,WID-361,,1,1")
}
