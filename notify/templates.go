package notify

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/model"
)

// TemplateKey names one of the fixed notification templates.
type TemplateKey string

// The notification templates.
const (
	TemplateRequestReceived    TemplateKey = "request_received"
	TemplateRequestAccepted    TemplateKey = "request_accepted"
	TemplateRequestRejected    TemplateKey = "request_rejected"
	TemplateSwapCompleted      TemplateKey = "swap_completed"
	TemplateFeedbackReceived   TemplateKey = "feedback_received"
	TemplateSkillRemoved       TemplateKey = "skill_removed"
	TemplateAccountSuspended   TemplateKey = "account_suspended"
	TemplateAccountWarned      TemplateKey = "account_warned"
	TemplateAccountReactivated TemplateKey = "account_reactivated"
	TemplatePlatformMessage    TemplateKey = "platform_message"
)

// Template maps an event's payload fields to the title and body of a notification.
type Template struct {
	Key      TemplateKey
	Type     model.NotificationType
	Required []string
	Email    bool
	title    *template.Template
	body     *template.Template
}

func newTemplate(key TemplateKey, notificationType model.NotificationType, email bool, title, body string, required ...string) *Template {
	return &Template{
		Key:      key,
		Type:     notificationType,
		Required: required,
		Email:    email,
		title:    template.Must(template.New(string(key) + ".title").Option("missingkey=error").Parse(title)),
		body:     template.Must(template.New(string(key) + ".body").Option("missingkey=error").Parse(body)),
	}
}

var templates = map[TemplateKey]*Template{}

func register(t *Template) {
	templates[t.Key] = t
}

func init() {
	register(newTemplate(
		TemplateRequestReceived, model.NotificationRequestReceived, false,
		"New swap request",
		"{{.senderName}} wants to trade {{.offeredSkill}} for your {{.requestedSkill}}.",
		"senderName", "offeredSkill", "requestedSkill",
	))
	register(newTemplate(
		TemplateRequestAccepted, model.NotificationRequestAccepted, true,
		"Swap request accepted",
		"{{.receiverName}} accepted your request to trade {{.offeredSkill}} for {{.requestedSkill}}.",
		"receiverName", "offeredSkill", "requestedSkill",
	))
	register(newTemplate(
		TemplateRequestRejected, model.NotificationRequestRejected, false,
		"Swap request declined",
		"{{.receiverName}} declined your request to trade {{.offeredSkill}} for {{.requestedSkill}}.",
		"receiverName", "offeredSkill", "requestedSkill",
	))
	register(newTemplate(
		TemplateSwapCompleted, model.NotificationSwapCompleted, true,
		"Skill swap completed",
		"Your skill swap with {{.partnerName}} (your {{.yourSkill}} for their {{.theirSkill}}) is complete. "+
			"Let them know how it went by leaving feedback.",
		"partnerName", "yourSkill", "theirSkill",
	))
	register(newTemplate(
		TemplateFeedbackReceived, model.NotificationFeedbackReceived, false,
		"New feedback received",
		"{{.giverName}} rated your skill swap {{.rating}} out of 5.",
		"giverName", "rating",
	))
	register(newTemplate(
		TemplateSkillRemoved, model.NotificationSkillRemoved, true,
		"Skill removed",
		`Your skill "{{.skillName}}" was removed from your profile. Reason: {{.reason}}`,
		"skillName", "reason",
	))
	register(newTemplate(
		TemplateAccountSuspended, model.NotificationAccountAction, true,
		"Account suspended",
		"Your account has been suspended. Reason: {{.reason}}",
		"reason",
	))
	register(newTemplate(
		TemplateAccountWarned, model.NotificationAccountAction, true,
		"Account warning",
		"Your account has received a warning. Reason: {{.reason}}",
		"reason",
	))
	register(newTemplate(
		TemplateAccountReactivated, model.NotificationAccountAction, true,
		"Account reactivated",
		"Your account has been reactivated. {{.reason}}",
		"reason",
	))
	register(newTemplate(
		TemplatePlatformMessage, model.NotificationPlatformMessage, false,
		"{{.title}}",
		"{{.message}}",
		"title", "message",
	))
}

// LookupTemplate returns the template with the given key.
func LookupTemplate(key TemplateKey) (*Template, error) {
	t, ok := templates[key]
	if !ok {
		return nil, common.NewInvalidArgumentError("unknown notification template: %s", key)
	}
	return t, nil
}

// TemplateKeys lists the keys of every template in sorted order.
func TemplateKeys() []TemplateKey {
	keys := make([]TemplateKey, 0, len(templates))
	for key := range templates {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Render produces the title and body of a notification. An InvalidArgumentError is returned if any of the
// template's required fields is missing or blank.
func (t *Template) Render(data map[string]interface{}) (string, string, error) {
	var missing []string
	for _, field := range t.Required {
		value, ok := data[field]
		if !ok || value == nil || strings.TrimSpace(fmt.Sprint(value)) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return "", "", common.NewInvalidArgumentError(
			"the %s template requires: %s", t.Key, strings.Join(missing, ", "),
		)
	}

	var title, body bytes.Buffer
	if err := t.title.Execute(&title, data); err != nil {
		return "", "", common.NewInvalidArgumentError("unable to render the %s title: %s", t.Key, err.Error())
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", common.NewInvalidArgumentError("unable to render the %s body: %s", t.Key, err.Error())
	}

	return title.String(), body.String(), nil
}
