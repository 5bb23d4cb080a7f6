// Package project defines the Project record cards are grouped under.
// spec.md §3 describes a card's "owning project identifier" without
// further detail on the Project entity itself; fields here are the
// minimum spec.md §6's Project CRUD and the event payload's optional
// project_id actually require.
package project

import "time"

// Project groups cards under a single repository/target.
type Project struct {
	ID            string
	Name          string
	RepoURL       string
	DefaultBranch string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
