package mqtt

import "time"

// Config holds MQTT publisher settings. An empty BrokerURL disables the
// publisher entirely.
type Config struct {
	BrokerURL         string
	Username          string
	Password          string
	ClientID          string
	TopicPrefix       string
	QoS               byte
	Retain            bool
	Timeout           time.Duration
	HADiscovery       bool
	HADiscoveryPrefix string

	// ApplianceHost identifies the polled appliance in object IDs and the
	// HA device block.
	ApplianceHost string
}

// DefaultConfig returns sensible publisher defaults.
func DefaultConfig() Config {
	return Config{
		ClientID:          "drivewatch",
		TopicPrefix:       "drivewatch",
		QoS:               1,
		Retain:            true,
		Timeout:           10 * time.Second,
		HADiscovery:       true,
		HADiscoveryPrefix: "homeassistant",
	}
}
