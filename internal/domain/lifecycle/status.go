// Package lifecycle holds the publication lifecycle shared by every level of
// the catalog hierarchy: the status enum, the static rule matrices and the
// pure decision functions built on them. Nothing in this package touches storage.
package lifecycle

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusInactive  Status = "inactive"
	StatusArchived  Status = "archived"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusPublished, StatusInactive, StatusArchived}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusInactive, StatusArchived:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// ParseStatus normalizes user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionReorder Action = "reorder"
)

// Ptr is a convenience for optional status arguments.
func Ptr(s Status) *Status { return &s }
