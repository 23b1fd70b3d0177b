package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemperatureAlert_NamedChannel(t *testing.T) {
	channel := "left"
	msg := TemperatureAlert([]string{"ops@example.com"}, "Freezer 2", "dev-7", &channel,
		-12.5, -20, -15, time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, []string{"ops@example.com"}, msg.Recipients)
	assert.Contains(t, msg.Subject, "Freezer 2")
	assert.Contains(t, msg.Body, "channel left")
	assert.Contains(t, msg.Body, "-12.5 C")
	assert.Contains(t, msg.Body, "-20.0 C to -15.0 C")
}

func TestTemperatureAlert_NilChannelReadsAsDevice(t *testing.T) {
	msg := TemperatureAlert([]string{"a@example.com"}, "Cooler 1", "dev-1", nil,
		9.1, 2, 8, time.Now())

	assert.Contains(t, msg.Body, "Reading on device")
	assert.NotContains(t, msg.Body, "channel")
}

func TestDeviceOffline_NeverReported(t *testing.T) {
	msg := DeviceOffline([]string{"ops@example.com"}, "Vaccine fridge", "Cooler 1", "dev-1",
		time.Time{}, 10*time.Minute)

	assert.Contains(t, msg.Subject, "Vaccine fridge")
	assert.Contains(t, msg.Body, "No telemetry has ever been received")
}

func TestAlertUnsubscribed(t *testing.T) {
	msg := AlertUnsubscribed("bob@example.com", "Cooler 1")

	assert.Equal(t, []string{"bob@example.com"}, msg.Recipients)
	assert.Contains(t, msg.Body, "no longer receive temperature alerts for Cooler 1")
}
