package notify

import (
	"testing"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/stretchr/testify/assert"
)

func TestEveryTemplateRendersWithItsRequiredFields(t *testing.T) {
	keys := TemplateKeys()
	assert.Len(t, keys, 10)

	for _, key := range keys {
		tmpl, err := LookupTemplate(key)
		if !assert.NoError(t, err) {
			continue
		}
		data := make(map[string]interface{})
		for _, field := range tmpl.Required {
			data[field] = "value-of-" + field
		}
		title, body, err := tmpl.Render(data)
		assert.NoErrorf(t, err, "template %s", key)
		assert.NotEmptyf(t, title, "template %s", key)
		assert.NotEmptyf(t, body, "template %s", key)
	}
}

func TestTemplateRequiresEveryField(t *testing.T) {
	tmpl, err := LookupTemplate(TemplateSkillRemoved)
	assert.NoError(t, err)

	_, _, err = tmpl.Render(map[string]interface{}{"skillName": "Juggling", "reason": "   "})
	assert.True(t, common.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "reason")
}

func TestSwapCompletedFramesThePartner(t *testing.T) {
	tmpl, _ := LookupTemplate(TemplateSwapCompleted)
	_, body, err := tmpl.Render(map[string]interface{}{
		"partnerName": "Bob", "yourSkill": "Guitar", "theirSkill": "Excel",
	})
	assert.NoError(t, err)
	assert.Contains(t, body, "Your skill swap with Bob (your Guitar for their Excel) is complete.")

	// The skills are relative to the recipient, so the sender's view of the request isn't enough.
	_, _, err = tmpl.Render(map[string]interface{}{
		"partnerName": "Bob", "offeredSkill": "Guitar", "requestedSkill": "Excel",
	})
	assert.True(t, common.IsInvalidArgument(err))
}

func TestFeedbackTemplateAcceptsNumericRating(t *testing.T) {
	tmpl, _ := LookupTemplate(TemplateFeedbackReceived)
	_, body, err := tmpl.Render(map[string]interface{}{"giverName": "Alice", "rating": 4})
	assert.NoError(t, err)
	assert.Equal(t, "Alice rated your skill swap 4 out of 5.", body)
}
