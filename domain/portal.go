package domain

import "time"

// Portal is a third-party service (GitHub, Jira, an LMS) the backend polls for deadlines.
type Portal struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name"`
	PortalType   string            `json:"portal_type"`
	BaseURL      string            `json:"base_url,omitempty"`
	IsActive     bool              `json:"is_active"`
	LastSyncedAt *time.Time        `json:"last_synced_at,omitempty"`
	Credentials  map[string]string `json:"credentials,omitempty"`
	CreatedAt    *time.Time        `json:"created_at,omitempty"`
}

// SyncResult is returned by the backend after a portal sync.
type SyncResult struct {
	Message       string `json:"message,omitempty"`
	DeadlinesSeen int    `json:"deadlines_found,omitempty"`
	DeadlinesNew  int    `json:"deadlines_created,omitempty"`
}
