package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotificationTypeValid(t *testing.T) {
	for _, notificationType := range NotificationTypes() {
		assert.True(t, notificationType.Valid(), "%s should be valid", notificationType)
	}
	assert.False(t, NotificationType("").Valid())
	assert.False(t, NotificationType("analysis").Valid())
}
