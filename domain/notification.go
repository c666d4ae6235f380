package domain

import "time"

// Notification is a reminder the backend has sent or scheduled.
type Notification struct {
	ID         string     `json:"id"`
	DeadlineID string     `json:"deadline_id,omitempty"`
	Channel    string     `json:"channel"`
	Message    string     `json:"message,omitempty"`
	Status     string     `json:"status,omitempty"`
	SendAt     *time.Time `json:"send_at,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// NotificationPreferences mirrors the settings table: one row per channel plus global timing.
type NotificationPreferences struct {
	EmailEnabled    bool   `json:"email_enabled"`
	SMSEnabled      bool   `json:"sms_enabled"`
	WhatsAppEnabled bool   `json:"whatsapp_enabled"`
	PushEnabled     bool   `json:"push_enabled"`
	PhoneNumber     string `json:"phone_number,omitempty"`
	ReminderHours   []int  `json:"reminder_hours,omitempty"`
	QuietHoursStart string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   string `json:"quiet_hours_end,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}
