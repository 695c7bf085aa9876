package conflict

import (
	"strings"
	"time"
)

// RemoteMapper resolves a remote tracker state into its local
// equivalent, matching pkg/mapping.Mapper.RemoteToLocal's signature
// without importing it directly (keeps conflict decoupled from the
// mapping YAML schema).
type RemoteMapper interface {
	RemoteToLocal(state string) (string, error)
}

// Detect reports a conflict iff local_state != map(remote_state) and
// both local_updated and remote_updated are after lastSync (spec §4.6,
// §8 law 8).
func Detect(contentKey, contentType, localState string, localUpdated time.Time, remoteState string, remoteUpdated time.Time, lastSync time.Time, mapper RemoteMapper, now time.Time) (*StateConflict, error) {
	mappedRemote, err := mapper.RemoteToLocal(remoteState)
	if err != nil {
		return nil, err
	}
	if localState == mappedRemote {
		return nil, nil
	}
	if !localUpdated.After(lastSync) || !remoteUpdated.After(lastSync) {
		return nil, nil
	}
	c := NewConflict(contentKey, contentType, localState, remoteState, localUpdated, remoteUpdated, now)
	return &c, nil
}

// ResolveKeepLocal resolves to the local state.
func ResolveKeepLocal(c StateConflict) (string, Strategy) {
	return c.LocalState, Strategy{Kind: KeepLocal}
}

// ResolveKeepRemote resolves to the mapped remote state.
func ResolveKeepRemote(c StateConflict, mapper RemoteMapper) (string, Strategy, error) {
	mapped, err := mapper.RemoteToLocal(c.RemoteState)
	if err != nil {
		return "", Strategy{}, err
	}
	return mapped, Strategy{Kind: KeepRemote}, nil
}

// ResolveRecentWins compares UTC timestamps (tolerant to trailing "Z")
// and picks whichever side was updated most recently.
func ResolveRecentWins(c StateConflict, mapper RemoteMapper) (string, Strategy, error) {
	if c.RemoteUpdated.After(c.LocalUpdated) {
		mapped, err := mapper.RemoteToLocal(c.RemoteState)
		if err != nil {
			return "", Strategy{}, err
		}
		return mapped, Strategy{Kind: RecentWins}, nil
	}
	return c.LocalState, Strategy{Kind: RecentWins}, nil
}

// ResolveManualFieldLevel applies a caller-supplied {field->side}
// selection, mapping remote-side values on the fly. fields maps a field
// name to "local" or "remote"; localValues/remoteValues carry the raw
// field values for each side. The returned map is the resolved
// per-field value set.
func ResolveManualFieldLevel(fields map[string]string, localValues, remoteValues map[string]string) (map[string]string, Strategy) {
	resolved := make(map[string]string, len(fields))
	for field, side := range fields {
		if strings.EqualFold(side, "remote") {
			resolved[field] = remoteValues[field]
		} else {
			resolved[field] = localValues[field]
		}
	}
	return resolved, Strategy{Kind: ManualFieldLevel, Fields: fields}
}

// ParseTimestamp parses an ISO-8601 timestamp tolerant of a trailing
// "Z", per spec §9 time handling.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if !strings.HasSuffix(s, "Z") && !strings.Contains(s, "+") {
		s += "Z"
	}
	return time.Parse(time.RFC3339, s)
}
