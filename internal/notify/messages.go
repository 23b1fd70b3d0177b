package notify

import (
	"fmt"
	"strings"
	"time"
)

// TemperatureAlert builds the message for a threshold breach on one device
// channel.
func TemperatureAlert(recipients []string, deviceName, deviceID string, channel *string, temperature, minTemp, maxTemp float64, at time.Time) *Message {
	channelLabel := "device"
	if channel != nil {
		channelLabel = "channel " + *channel
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Temperature alert for %s (%s).\n\n", deviceName, deviceID)
	fmt.Fprintf(&b, "Reading on %s: %.1f C\n", channelLabel, temperature)
	fmt.Fprintf(&b, "Allowed range: %.1f C to %.1f C\n", minTemp, maxTemp)
	fmt.Fprintf(&b, "Measured at: %s\n", at.UTC().Format(time.RFC3339))

	return &Message{
		Recipients: recipients,
		Subject:    fmt.Sprintf("Temperature alert: %s", deviceName),
		Body:       b.String(),
	}
}

// DeviceOffline builds the operations notice for a critical device that has
// stopped reporting.
func DeviceOffline(recipients []string, label, deviceName, deviceID string, lastSeen time.Time, threshold time.Duration) *Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Critical device %s (%s, %s) has not reported for more than %s.\n\n", label, deviceName, deviceID, threshold)
	if lastSeen.IsZero() {
		b.WriteString("No telemetry has ever been received from this device.\n")
	} else {
		fmt.Fprintf(&b, "Last reading: %s\n", lastSeen.UTC().Format(time.RFC3339))
	}

	return &Message{
		Recipients: recipients,
		Subject:    fmt.Sprintf("Device offline: %s", label),
		Body:       b.String(),
	}
}

// AlertUnsubscribed tells a recipient they were removed from a device's
// temperature alerts.
func AlertUnsubscribed(recipient, deviceName string) *Message {
	return &Message{
		Recipients: []string{recipient},
		Subject:    fmt.Sprintf("Unsubscribed from alerts: %s", deviceName),
		Body: fmt.Sprintf("You will no longer receive temperature alerts for %s.\n"+
			"If this was unexpected, contact your administrator.\n", deviceName),
	}
}
