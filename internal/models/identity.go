package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMalformedIdentity indicates missing or placeholder run identifiers
var ErrMalformedIdentity = errors.New("malformed run identity")

// placeholders are values a client sends when a route was never filled in
var placeholders = map[string]bool{
	"undefined":    true,
	"null":         true,
	":workflowid":  true,
	":runid":       true,
	"{workflowid}": true,
	"{runid}":      true,
}

// RunIdentity holds the opaque external identifiers of a run
type RunIdentity struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

func (id RunIdentity) String() string {
	return id.WorkflowID + "/" + id.RunID
}

// Validate rejects empty and placeholder identifiers
func (id RunIdentity) Validate() error {
	if err := checkIdentifier("workflow_id", id.WorkflowID); err != nil {
		return err
	}
	return checkIdentifier("run_id", id.RunID)
}

// PathSegments returns both identifiers percent-encoded for use in a URL path
func (id RunIdentity) PathSegments() string {
	return url.PathEscape(id.WorkflowID) + "/" + url.PathEscape(id.RunID)
}

// ParseRunIdentity percent-decodes identifiers read from a navigational path
func ParseRunIdentity(rawWorkflowID, rawRunID string) (RunIdentity, error) {
	workflowID, err := url.PathUnescape(rawWorkflowID)
	if err != nil {
		return RunIdentity{}, fmt.Errorf("%w: workflow_id: %v", ErrMalformedIdentity, err)
	}
	runID, err := url.PathUnescape(rawRunID)
	if err != nil {
		return RunIdentity{}, fmt.Errorf("%w: run_id: %v", ErrMalformedIdentity, err)
	}

	id := RunIdentity{WorkflowID: workflowID, RunID: runID}
	if err := id.Validate(); err != nil {
		return RunIdentity{}, err
	}
	return id, nil
}

func checkIdentifier(field, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%w: %s is empty", ErrMalformedIdentity, field)
	}
	if placeholders[strings.ToLower(trimmed)] {
		return fmt.Errorf("%w: %s is a placeholder (%q)", ErrMalformedIdentity, field, value)
	}
	return nil
}
