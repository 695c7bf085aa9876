// Package discovery builds the normalised ContentIndex from a scan
// result and diffs it against the previously persisted index, per spec
// §4.1 and §8 law 2 (diff completeness).
package discovery

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/afero"

	"github.com/chambrid/bmad-sync/pkg/scan"
)

var storySlugRe = regexp.MustCompile(`^\d+-\d+-[a-z0-9-]+$`)

// Entry is one indexed artefact: an epic or a story.
type Entry struct {
	FilePath    string `json:"file_path"`
	Hash        string `json:"hash"`
	Title       string `json:"title"`
	EpicNumber  int    `json:"epic_number"`
	StoryNumber int    `json:"story_number,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Changes partitions content keys found across two indices into added,
// modified, and deleted sets.
type Changes struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// Index is the persisted content_index.json document.
type Index struct {
	LastScan time.Time        `json:"last_scan"`
	Epics    map[string]Entry `json:"epics"`
	Stories  map[string]Entry `json:"stories"`
	Changes  Changes          `json:"changes"`
}

// EpicKey formats the ContentKey for an epic number.
func EpicKey(n int) string { return fmt.Sprintf("epic-%d", n) }

// StoryKey formats the ContentKey for a story: "<epic>-<story>-<slug>".
// slug must already be a lowercase-digits-dashes token (spec §3).
func StoryKey(epic, story int, slug string) string {
	return fmt.Sprintf("%d-%d-%s", epic, story, slug)
}

// slugFromPath derives the slug portion of a story filename matching
// `^\d+-\d+-[a-z0-9-]+\.md$`.
func slugFromPath(path string) string {
	base := path
	if i := lastSlash(base); i >= 0 {
		base = base[i+1:]
	}
	if len(base) > 3 && base[len(base)-3:] == ".md" {
		base = base[:len(base)-3]
	}
	// strip the leading "<epic>-<story>-" prefix
	parts := splitN(base, '-', 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return base
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// Build scans root and produces a fresh Index, diffed against previous
// (nil for a baseline run, in which case Changes is empty per spec
// §4.1).
func Build(fs afero.Fs, root string, previous *Index, now time.Time) (*Index, []scan.Warning, error) {
	result, err := scan.Scan(fs, root)
	if err != nil {
		return nil, nil, err
	}

	idx := &Index{
		LastScan: now,
		Epics:    make(map[string]Entry, len(result.Epics)),
		Stories:  make(map[string]Entry, len(result.Stories)),
	}

	for _, e := range result.Epics {
		key := EpicKey(e.Number)
		idx.Epics[key] = Entry{
			FilePath:   e.Path,
			Hash:       e.Hash,
			Title:      e.Title,
			EpicNumber: e.Number,
		}
	}
	for _, s := range result.Stories {
		slug := slugFromPath(s.Path)
		key := StoryKey(s.Epic, s.Number, slug)
		idx.Stories[key] = Entry{
			FilePath:    s.Path,
			Hash:        s.Hash,
			Title:       s.Title,
			EpicNumber:  s.Epic,
			StoryNumber: s.Number,
			Status:      s.Status,
		}
	}

	idx.Changes = diff(previous, idx)
	return idx, result.Warnings, nil
}

// diff computes {added, modified, deleted} over the union of epic and
// story keys from previous and current, per spec §8 law 2: the three
// sets partition keys(A) ∪ keys(B) exactly.
func diff(previous, current *Index) Changes {
	if previous == nil {
		return Changes{}
	}

	prevAll := mergedKeys(previous)
	currAll := mergedKeys(current)

	var ch Changes
	for key, curEntry := range currAll {
		if prevEntry, ok := prevAll[key]; ok {
			if prevEntry.Hash != curEntry.Hash {
				ch.Modified = append(ch.Modified, key)
			}
		} else {
			ch.Added = append(ch.Added, key)
		}
	}
	for key := range prevAll {
		if _, ok := currAll[key]; !ok {
			ch.Deleted = append(ch.Deleted, key)
		}
	}
	return ch
}

func mergedKeys(idx *Index) map[string]Entry {
	out := make(map[string]Entry, len(idx.Epics)+len(idx.Stories))
	for k, v := range idx.Epics {
		out[k] = v
	}
	for k, v := range idx.Stories {
		out[k] = v
	}
	return out
}

// Get resolves a content key to its Entry, checking epics then stories.
func (idx *Index) Get(key string) (Entry, bool) {
	if e, ok := idx.Epics[key]; ok {
		return e, true
	}
	if e, ok := idx.Stories[key]; ok {
		return e, true
	}
	return Entry{}, false
}

// IsStoryKey reports whether key has the story key shape (used to
// disambiguate epic vs story content keys generically).
func IsStoryKey(key string) bool { return storySlugRe.MatchString(key) }
