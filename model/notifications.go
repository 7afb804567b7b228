package model

import "time"

// NotificationType identifies the kind of event that caused a notification to be created.
type NotificationType string

// The notification types that may be recorded.
const (
	NotificationRequestReceived  NotificationType = "request_received"
	NotificationRequestAccepted  NotificationType = "request_accepted"
	NotificationRequestRejected  NotificationType = "request_rejected"
	NotificationSwapCompleted    NotificationType = "swap_completed"
	NotificationFeedbackReceived NotificationType = "feedback_received"
	NotificationSkillRemoved     NotificationType = "skill_removed"
	NotificationAccountAction    NotificationType = "account_action"
	NotificationPlatformMessage  NotificationType = "platform_message"
)

// NotificationTypes returns every known notification type.
func NotificationTypes() []NotificationType {
	return []NotificationType{
		NotificationRequestReceived, NotificationRequestAccepted, NotificationRequestRejected,
		NotificationSwapCompleted, NotificationFeedbackReceived, NotificationSkillRemoved,
		NotificationAccountAction, NotificationPlatformMessage,
	}
}

// Valid returns true if the notification type is one of the known types.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Notification represents a single notification recorded for a user.
type Notification struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	IsRead    bool                   `json:"isRead"`
	CreatedAt time.Time              `json:"createdAt"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
}

// NotificationFilter narrows down a notification listing.
type NotificationFilter struct {
	UnreadOnly bool
	Type       NotificationType
	Limit      uint64
	Offset     uint64
}
