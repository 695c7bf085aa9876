// Package scan walks a BMAD project root and parses its markdown epics
// and stories plus the sprint-status YAML file, producing the raw
// entities that pkg/discovery indexes and hashes. It globs against an
// afero.Fs so tests can scan an in-memory tree and production scans the
// real filesystem identically.
package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

var (
	epicHeaderRe    = regexp.MustCompile(`^#\s*Epic\s+(\d+)[^:]*:\s*(.+)$`)
	epicHeaderNoColonRe = regexp.MustCompile(`^#\s*Epic\s+(\d+)\s+(.+)$`)
	storyHeaderRe   = regexp.MustCompile(`^#\s*Story\s+(\d+)\.(\d+):\s*(.+)$`)
	statusLineRe    = regexp.MustCompile(`^Status:\s*([A-Za-z\-]+)$`)
	acceptanceHdrRe = regexp.MustCompile(`^##\s*Acceptance Criteria$`)
	sectionHdrRe    = regexp.MustCompile(`^##\s+`)
	tagsLineRe      = regexp.MustCompile(`^##\s*Tags$`)
	storyFilenameRe = regexp.MustCompile(`^\d+-\d+-[a-z0-9-]+\.md$`)
	numberedItemRe  = regexp.MustCompile(`^\s*\d+\.\s+(.*)$`)
	bulletItemRe    = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)
)

// Epic is a parsed epic document.
type Epic struct {
	Path   string
	Number int
	Title  string
	Raw    []byte
	Hash   string
}

// Story is a parsed story document.
type Story struct {
	Path               string
	Epic               int
	Number             int
	Title              string
	Status             string
	AcceptanceCriteria []string
	Tags               []string
	Raw                []byte
	Hash               string
}

// Warning records a non-fatal problem with a single file; the file is
// skipped but the scan continues.
type Warning struct {
	Path    string
	Message string
}

// Result is the full output of a scan: every parsed epic and story plus
// any warnings for files that were skipped.
type Result struct {
	Epics    []Epic
	Stories  []Story
	Warnings []Warning
}

// ScannerError signals a fatal scan failure (a missing root directory).
type ScannerError struct {
	Message string
	Err     error
	Context string
}

func (e *ScannerError) Error() string {
	return "scanner: " + e.Message + ": " + e.Context
}

func (e *ScannerError) Unwrap() error { return e.Err }

// Scan walks root on fs, collecting epics and stories per the glob set
// and parsing rules in spec §4.1. A missing root is fatal; malformed
// individual files degrade to warnings.
func Scan(fs afero.Fs, root string) (*Result, error) {
	if ok, err := afero.DirExists(fs, root); err != nil || !ok {
		return nil, &ScannerError{Message: "bmad root does not exist", Err: err, Context: root}
	}

	res := &Result{}

	epicPaths, err := globEpics(fs, root)
	if err != nil {
		return nil, &ScannerError{Message: "failed to glob epics", Err: err, Context: root}
	}
	for _, p := range epicPaths {
		epic, warn, err := parseEpicFile(fs, p)
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Path: p, Message: err.Error()})
			continue
		}
		if warn != "" {
			res.Warnings = append(res.Warnings, Warning{Path: p, Message: warn})
			continue
		}
		res.Epics = append(res.Epics, *epic)
	}

	storyPaths, err := globStories(fs, root)
	if err != nil {
		return nil, &ScannerError{Message: "failed to glob stories", Err: err, Context: root}
	}
	for _, p := range storyPaths {
		story, warn, err := parseStoryFile(fs, p)
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Path: p, Message: err.Error()})
			continue
		}
		if warn != "" {
			res.Warnings = append(res.Warnings, Warning{Path: p, Message: warn})
			continue
		}
		res.Stories = append(res.Stories, *story)
	}

	sort.Slice(res.Epics, func(i, j int) bool { return res.Epics[i].Number < res.Epics[j].Number })
	sort.Slice(res.Stories, func(i, j int) bool {
		if res.Stories[i].Epic != res.Stories[j].Epic {
			return res.Stories[i].Epic < res.Stories[j].Epic
		}
		return res.Stories[i].Number < res.Stories[j].Number
	})

	return res, nil
}

// globEpics implements the epic glob set from spec §4.1: epic-*.md,
// epic-*/index.md, epics/*.md, epics/*/index.md. The top-level epics.md
// index is not globbed, and any match named epics.md is dropped from the
// returned list (it's an index, not an epic body).
func globEpics(fs afero.Fs, root string) ([]string, error) {
	patterns := []string{
		"epic-*.md",
		"epic-*/index.md",
		"epics/*.md",
		"epics/*/index.md",
	}
	seen := make(map[string]bool)
	var out []string
	for _, pat := range patterns {
		matches, err := afero.Glob(fs, filepath.Join(root, pat))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			if filepath.Base(m) == "epics.md" {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// globStories implements stories/*.md and stories/*/*.md, retaining only
// names matching storyFilenameRe and excluding *-context.md.
func globStories(fs afero.Fs, root string) ([]string, error) {
	patterns := []string{"stories/*.md", "stories/*/*.md"}
	seen := make(map[string]bool)
	var out []string
	for _, pat := range patterns {
		matches, err := afero.Glob(fs, filepath.Join(root, pat))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			name := filepath.Base(m)
			if strings.HasSuffix(name, "-context.md") {
				continue
			}
			if !storyFilenameRe.MatchString(name) {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

func parseEpicFile(fs afero.Fs, path string) (*Epic, string, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, "", err
	}

	lines := splitLines(raw)
	for _, line := range lines {
		if m := epicHeaderRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			return &Epic{Path: path, Number: n, Title: strings.TrimSpace(m[2]), Raw: raw, Hash: Hash(raw)}, "", nil
		}
	}
	for _, line := range lines {
		if m := epicHeaderNoColonRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			return &Epic{Path: path, Number: n, Title: strings.TrimSpace(m[2]), Raw: raw, Hash: Hash(raw)}, "", nil
		}
	}
	return nil, "no epic header found", nil
}

func parseStoryFile(fs afero.Fs, path string) (*Story, string, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, "", err
	}

	lines := splitLines(raw)

	var epicN, storyN int
	var title, status string
	headerFound := false
	for _, line := range lines {
		if m := storyHeaderRe.FindStringSubmatch(line); m != nil {
			epicN, _ = strconv.Atoi(m[1])
			storyN, _ = strconv.Atoi(m[2])
			title = strings.TrimSpace(m[3])
			headerFound = true
			break
		}
	}
	if !headerFound {
		return nil, "no story header found", nil
	}
	for _, line := range lines {
		if m := statusLineRe.FindStringSubmatch(line); m != nil {
			status = m[1]
			break
		}
	}

	ac := extractSection(lines, acceptanceHdrRe)
	tags := extractSection(lines, tagsLineRe)

	story := &Story{
		Path:               path,
		Epic:               epicN,
		Number:             storyN,
		Title:              title,
		Status:             status,
		AcceptanceCriteria: parseListItems(ac),
		Tags:               parseTagsLine(tags),
		Raw:                raw,
		Hash:               Hash(raw),
	}
	return story, "", nil
}

// extractSection returns the lines following a header matching hdr, up to
// (not including) the next "## " header.
func extractSection(lines []string, hdr *regexp.Regexp) []string {
	start := -1
	for i, line := range lines {
		if hdr.MatchString(line) {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return nil
	}
	var out []string
	for i := start; i < len(lines); i++ {
		if sectionHdrRe.MatchString(lines[i]) {
			break
		}
		out = append(out, lines[i])
	}
	return out
}

// parseListItems interprets both numbered ("1. foo") and bulleted
// ("-"/"*" foo) items as acceptance-criteria entries.
func parseListItems(lines []string) []string {
	var out []string
	for _, line := range lines {
		if m := numberedItemRe.FindStringSubmatch(line); m != nil {
			if s := strings.TrimSpace(m[1]); s != "" {
				out = append(out, s)
			}
			continue
		}
		if m := bulletItemRe.FindStringSubmatch(line); m != nil {
			if s := strings.TrimSpace(m[1]); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// parseTagsLine reads the first non-empty line of a "## Tags" section as
// a comma-separated tag list.
func parseTagsLine(lines []string) []string {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var tags []string
		for _, t := range strings.Split(line, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		return tags
	}
	return nil
}

func splitLines(raw []byte) []string {
	return strings.Split(Normalise(raw), "\n")
}

// Normalise canonicalises line endings to LF and strips per-line
// trailing whitespace, so the hash and the parser both operate on the
// same canonical text regardless of how the file was saved.
func Normalise(raw []byte) string {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// Hash returns the sha256 of the normalised content, hex-encoded.
func Hash(raw []byte) string {
	sum := sha256.Sum256([]byte(Normalise(raw)))
	return hex.EncodeToString(sum[:])
}
