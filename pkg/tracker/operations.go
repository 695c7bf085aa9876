package tracker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Issue is the parsed shape of `issue get`/`issue create`/`issue update`
// JSON output, for the fields the sync engine and numbering registry
// care about.
type Issue struct {
	ID       string   `json:"id"`
	Key      string   `json:"key"`
	State    string   `json:"state"`
	Title    string   `json:"title"`
	Labels   []string `json:"labels"`
	ParentID string   `json:"parent_id"`
	Updated  string   `json:"updated"`
}

// CreatePayload is the validated request for `issue create`.
type CreatePayload struct {
	Title       string
	Team        string
	Description string
	Priority    string
	Project     string
	Labels      []string
}

// UpdatePayload is the validated request for `issue update`.
type UpdatePayload struct {
	ID          string
	Description string
	State       string
	Priority    string
	Project     string
	AddLabels   []string
	RemoveLabels []string
	SetLabels   []string
	ParentID    string
}

// ValidationError signals an invalid operation payload (spec §7).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "validation: " + e.Message }

func (p CreatePayload) validate() error {
	if p.Title == "" {
		return &ValidationError{Message: "title must not be empty"}
	}
	if p.Team == "" {
		return &ValidationError{Message: "team must not be empty"}
	}
	return nil
}

// CreateIssue calls `issue create --title --team [--description
// --priority --project --label]*`, validating the payload first.
func (w *Wrapper) CreateIssue(ctx context.Context, p CreatePayload) (*Issue, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	args := []string{"issue", "create", "--title", p.Title, "--team", p.Team}
	if p.Description != "" {
		args = append(args, "--description", p.Description)
	}
	if p.Priority != "" {
		args = append(args, "--priority", p.Priority)
	}
	if p.Project != "" {
		args = append(args, "--project", p.Project)
	}
	caps, _ := w.Probe(ctx)
	if caps.SupportsLabels {
		for _, l := range p.Labels {
			args = append(args, "--label", l)
		}
	} else if len(p.Labels) > 0 && w.Log.GetSink() != nil {
		w.Log.Info("tracker CLI does not support --label, labels skipped on create")
	}

	res, err := w.Invoke(ctx, args...)
	if err != nil {
		return nil, err
	}
	return unmarshalIssue(res)
}

// UpdateIssue calls `issue update <id> [--description --state
// --priority --project --label --add-label --remove-label]*`. Label
// support is silently skipped when the probed CLI lacks it.
func (w *Wrapper) UpdateIssue(ctx context.Context, p UpdatePayload) (*Issue, error) {
	if p.ID == "" {
		return nil, &ValidationError{Message: "id must not be empty"}
	}

	args := []string{"issue", "update", p.ID}
	if p.Description != "" {
		args = append(args, "--description", p.Description)
	}
	if p.State != "" {
		args = append(args, "--state", p.State)
	}
	if p.Priority != "" {
		args = append(args, "--priority", p.Priority)
	}
	if p.Project != "" {
		args = append(args, "--project", p.Project)
	}
	caps, _ := w.Probe(ctx)
	if caps.SupportsParentID && p.ParentID != "" {
		args = append(args, "--parent", p.ParentID)
	}
	if caps.SupportsLabels {
		for _, l := range p.AddLabels {
			args = append(args, "--add-label", l)
		}
		for _, l := range p.RemoveLabels {
			args = append(args, "--remove-label", l)
		}
		for _, l := range p.SetLabels {
			args = append(args, "--label", l)
		}
	} else if (len(p.AddLabels) > 0 || len(p.RemoveLabels) > 0) && w.Log.GetSink() != nil {
		w.Log.Info("tracker CLI does not support labels, label changes skipped on update")
	}

	res, err := w.Invoke(ctx, args...)
	if err != nil {
		return nil, err
	}
	return unmarshalIssue(res)
}

// GetIssue calls `issue get <id>`.
func (w *Wrapper) GetIssue(ctx context.Context, id string) (*Issue, error) {
	res, err := w.Invoke(ctx, "issue", "get", id)
	if err != nil {
		return nil, err
	}
	return unmarshalIssue(res)
}

// IssueExists implements numbering.RemoteLookup by probing `issue get`
// for a numeric id, treating any error as "does not exist" (a missing
// issue and an unreachable tracker both mean the numbering registry
// should not treat the id as remotely reserved).
func (w *Wrapper) IssueExists(ctx context.Context, id int) bool {
	_, err := w.GetIssue(ctx, fmt.Sprintf("%d", id))
	return err == nil
}

// Teams calls `team list`.
func (w *Wrapper) Teams(ctx context.Context) ([]string, error) {
	res, err := w.Invoke(ctx, "team", "list")
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(res.JSON, &names); err != nil {
		return nil, &TrackerError{Message: "failed to parse team list output", Err: err}
	}
	return names, nil
}

// Projects calls `project list --team <team>`.
func (w *Wrapper) Projects(ctx context.Context, team string) ([]string, error) {
	res, err := w.Invoke(ctx, "project", "list", "--team", team)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(res.JSON, &names); err != nil {
		return nil, &TrackerError{Message: "failed to parse project list output", Err: err}
	}
	return names, nil
}

// WhoAmI calls `user me`, used by Healthcheck to verify authentication.
func (w *Wrapper) WhoAmI(ctx context.Context) (string, error) {
	res, err := w.Invoke(ctx, "user", "me")
	if err != nil {
		return "", err
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(res.JSON, &out); err != nil {
		return res.Raw, nil
	}
	return out.Name, nil
}

func unmarshalIssue(res *Result) (*Issue, error) {
	var issue Issue
	if err := json.Unmarshal(res.JSON, &issue); err != nil {
		return nil, &TrackerError{Message: "failed to parse tracker issue output", Err: err}
	}
	return &issue, nil
}
