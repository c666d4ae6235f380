package domain

import "time"

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Deadline is a tracked due date owned by the backend.
type Deadline struct {
	ID          string     `json:"id,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     time.Time  `json:"due_date"`
	Priority    string     `json:"priority,omitempty"`
	Status      string     `json:"status,omitempty"`
	Source      string     `json:"source,omitempty"`
	PortalID    string     `json:"portal_id,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (d *Deadline) IsCompleted() bool {
	return d != nil && d.Status == "completed"
}

// DeadlineInput is the create/update payload. Nil fields are left untouched on update.
type DeadlineInput struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Status      *string    `json:"status,omitempty"`
}

// Validate checks the fields required to create a deadline.
func (in DeadlineInput) Validate() error {
	if in.Title == nil || *in.Title == "" {
		return NewError(ErrCodeInvalid, "title is required")
	}
	if in.DueDate == nil || in.DueDate.IsZero() {
		return NewError(ErrCodeInvalid, "due date is required")
	}
	return nil
}
