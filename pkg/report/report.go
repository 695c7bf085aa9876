// Package report re-emits a persisted sync report as JSON or CSV.
// Spec's Non-goals exclude human report formatting (markdown/CSV/ANSI
// rendering) as a presentation concern; this package stays on the
// standard library's encoding/csv and encoding/json for exactly that
// reason (see DESIGN.md) rather than reaching for a third-party
// renderer.
package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/chambrid/bmad-sync/pkg/sync"
)

// WriteJSON re-serialises report as indented JSON to w.
func WriteJSON(w io.Writer, report *sync.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

var csvHeader = []string{"action", "content_key", "content_type", "reason", "title", "issue_id", "mapped_state", "epic", "story"}

// WriteCSV emits one row per operation in report, plus a header row.
func WriteCSV(w io.Writer, report *sync.Report) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, op := range report.Operations {
		row := []string{
			string(op.Action),
			op.ContentKey,
			string(op.ContentType),
			string(op.Reason),
			op.Title,
			op.IssueID,
			op.MappedState,
			itoa(op.Epic),
			itoa(op.Story),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
