package domain

import "time"

// ExtractedDeadline is a deadline the backend found in a WhatsApp message. Display-only.
type ExtractedDeadline struct {
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	DueDate       time.Time `json:"due_date"`
	Priority      string    `json:"priority,omitempty"`
	Confidence    float64   `json:"confidence"`
	Sender        string    `json:"sender,omitempty"`
	SourceMessage string    `json:"source_message,omitempty"`
}

// AsInput converts an extracted deadline into a create payload so it can be saved.
func (e ExtractedDeadline) AsInput() DeadlineInput {
	title := e.Title
	due := e.DueDate
	in := DeadlineInput{Title: &title, DueDate: &due}
	if e.Description != "" {
		desc := e.Description
		in.Description = &desc
	}
	if e.Priority != "" {
		prio := e.Priority
		in.Priority = &prio
	}
	return in
}

// WhatsAppMessage is the parse-message request payload.
type WhatsAppMessage struct {
	Message string `json:"message"`
	Sender  string `json:"sender,omitempty"`
}

// ParseResult is returned by both parse-message and upload-chat.
type ParseResult struct {
	Deadlines     []ExtractedDeadline `json:"deadlines"`
	TotalMessages int                 `json:"total_messages,omitempty"`
	Message       string              `json:"message,omitempty"`
}
