package portfolio

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// markerPrefix tags every crontab line this tool writes, so removing a
// project's schedule is a grep, not a parse.
func markerPrefix(projectKey string) string {
	return fmt.Sprintf("# bmad-sync:%s", projectKey)
}

// ValidateSchedule parses expr with cron's standard (5-field) parser,
// rejecting anything the host scheduler would also reject before it is
// persisted into the portfolio config.
func ValidateSchedule(expr string) error {
	_, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("portfolio: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// RenderScheduleLine formats a crontab entry for projectKey's schedule,
// tagged with its marker comment on the preceding line, invoking
// command to run that project's sync.
func RenderScheduleLine(projectKey, expr, command string) string {
	return fmt.Sprintf("%s\n%s %s\n", markerPrefix(projectKey), expr, command)
}

// UpsertSchedule replaces any existing entry for projectKey within
// crontab (a full crontab file's contents) with a freshly rendered one,
// appending it if none existed yet.
func UpsertSchedule(crontab, projectKey, expr, command string) string {
	without := RemoveSchedule(crontab, projectKey)
	rendered := RenderScheduleLine(projectKey, expr, command)
	if without != "" && !strings.HasSuffix(without, "\n") {
		without += "\n"
	}
	return without + rendered
}

// RemoveSchedule strips projectKey's marker-tagged comment and the
// cron line immediately following it from crontab, leaving everything
// else untouched. It is idempotent: removing an already-absent
// schedule is a no-op.
func RemoveSchedule(crontab, projectKey string) string {
	marker := markerPrefix(projectKey)
	lines := strings.Split(crontab, "\n")

	out := make([]string, 0, len(lines))
	skipNext := false
	for _, line := range lines {
		if skipNext {
			skipNext = false
			continue
		}
		if strings.TrimSpace(line) == marker {
			skipNext = true
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
