package common

import (
	"testing"
	"time"
)

func GetTestTimestamp() time.Time {
	return time.Unix(int64(1594336370), int64(706917000))
}

func TestFormatTimestamp(t *testing.T) {
	expected := "1594336370706"
	actual := FormatTimestamp(GetTestTimestamp())
	if actual != expected {
		t.Errorf("unexpected timestamp: got '%s' instead of '%s'", actual, expected)
	}
}

func TestFormatTimestampTruncatesToSeconds(t *testing.T) {
	expected := "1594336370000"
	actual := FormatTimestamp(GetTestTimestamp().Truncate(time.Second))
	if actual != expected {
		t.Errorf("unexpected timestamp: got '%s' instead of '%s'", actual, expected)
	}
}

func TestValidateEmailAddress(t *testing.T) {
	if err := ValidateEmailAddress("sarahr@cyverse.org"); err != nil {
		t.Errorf("valid address rejected: %s", err.Error())
	}
	if err := ValidateEmailAddress("not an address"); err == nil {
		t.Errorf("invalid address accepted")
	}
}
