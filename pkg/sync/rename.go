package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var (
	teamPrefixRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*-(\d+)$`)
	epicIDLineRe = regexp.MustCompile(`^\*\*Epic ID:\*\*`)
	statusLineRe = regexp.MustCompile(`^Status:\s*`)
)

// StripTeamPrefix converts a human tracker id like "WID-360" into its
// bare numeric id, per spec §4.7 ("strip team prefix -> numeric id").
// If issueID has no team-prefix shape, it is returned unchanged, parsed
// as-is.
func StripTeamPrefix(issueID string) (int, error) {
	if m := teamPrefixRe.FindStringSubmatch(issueID); m != nil {
		return strconv.Atoi(m[1])
	}
	return strconv.Atoi(issueID)
}

// RenameEpicFile renames an epic markdown file to
// "epic-<numericID>[-context].md", preserving a pre-existing "-context"
// suffix or adding one when the file is being contexted for the first
// time (spec §4.7, matching E2E-A's epic-1.md -> epic-360-context.md).
func RenameEpicFile(fs afero.Fs, path string, numericID int) (string, error) {
	dir := filepath.Dir(path)
	newPath := filepath.Join(dir, fmt.Sprintf("epic-%d-context.md", numericID))
	if newPath == path {
		return path, nil
	}
	if err := fs.Rename(path, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}

// RenameStoryFile renames a story markdown file to
// "<epicNumericID>-<storyNumericID>-<slug>.md" (spec §4.7).
func RenameStoryFile(fs afero.Fs, path string, epicNumericID, storyNumericID int, slug string) (string, error) {
	dir := filepath.Dir(path)
	newPath := filepath.Join(dir, fmt.Sprintf("%d-%d-%s.md", epicNumericID, storyNumericID, slug))
	if newPath == path {
		return path, nil
	}
	if err := fs.Rename(path, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}

// InsertEpicMarker inserts "**Linear Epic:** <id>" after the
// "**Epic ID:**" line if present, else at the top of the file.
func InsertEpicMarker(fs afero.Fs, path, id string) error {
	return insertMarkerAfter(fs, path, epicIDLineRe, fmt.Sprintf("**Linear Epic:** %s", id))
}

// InsertStoryMarker inserts "**Linear Issue:** <id>" after the first
// "Status:" line if present, else at the top of the file.
func InsertStoryMarker(fs afero.Fs, path, id string) error {
	return insertMarkerAfter(fs, path, statusLineRe, fmt.Sprintf("**Linear Issue:** %s", id))
}

func insertMarkerAfter(fs afero.Fs, path string, anchor *regexp.Regexp, marker string) error {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(raw), "\n")

	insertAt := -1
	for i, line := range lines {
		if anchor.MatchString(line) {
			insertAt = i + 1
			break
		}
	}
	if insertAt == -1 {
		insertAt = 0
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, marker)
	out = append(out, lines[insertAt:]...)

	return afero.WriteFile(fs, path, []byte(strings.Join(out, "\n")), 0o644)
}

// crossRefPatterns builds the three cross-reference shapes from spec
// §4.7: "<e>.<s>", "<e>-<s>", "Story <e>.<s>".
func crossRefPatterns(oldEpic, oldStory int) []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(`\b%d\.%d\b`, oldEpic, oldStory)),
		regexp.MustCompile(fmt.Sprintf(`\b%d-%d\b`, oldEpic, oldStory)),
		regexp.MustCompile(fmt.Sprintf(`\bStory %d\.%d\b`, oldEpic, oldStory)),
	}
}

func crossRefReplacements(newEpic, newStory int) []string {
	return []string{
		fmt.Sprintf("%d.%d", newEpic, newStory),
		fmt.Sprintf("%d-%d", newEpic, newStory),
		fmt.Sprintf("Story %d.%d", newEpic, newStory),
	}
}

// UpdateCrossReferences rewrites every "<e>.<s>"/"<e>-<s>"/"Story
// <e>.<s>" occurrence of the old epic/story numbers to the new ones, in
// every markdown file under root.
func UpdateCrossReferences(fs afero.Fs, root string, oldEpic, oldStory, newEpic, newStory int) error {
	patterns := crossRefPatterns(oldEpic, oldStory)
	replacements := crossRefReplacements(newEpic, newStory)

	return afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		raw, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		text := string(raw)
		changed := false
		for i, pat := range patterns {
			if pat.MatchString(text) {
				text = pat.ReplaceAllString(text, replacements[i])
				changed = true
			}
		}
		if changed {
			return afero.WriteFile(fs, path, []byte(text), 0o644)
		}
		return nil
	})
}

// RenameSprintStatusKey renames a development_status key from oldKey to
// newKey in place, preserving its value and the document's key order.
func RenameSprintStatusKey(fs afero.Fs, path, oldKey, newKey string) error {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	root := &doc
	if len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "development_status" {
			continue
		}
		mapping := root.Content[i+1]
		for j := 0; j < len(mapping.Content); j += 2 {
			if mapping.Content[j].Value == oldKey {
				mapping.Content[j].Value = newKey
			}
		}
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, out, 0o644)
}
