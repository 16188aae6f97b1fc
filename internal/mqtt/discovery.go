package mqtt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/HerbHall/drivewatch/internal/drive"
)

// nonAlphanumeric matches any character that is not alphanumeric or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DiscoveryConfig holds a single HA MQTT discovery payload.
type DiscoveryConfig struct {
	Topic   string // Full MQTT topic (homeassistant/...)
	Payload []byte // JSON-encoded config (empty = remove)
	Retain  bool   // Discovery configs should always be retained
}

// HADevice is the "device" block in HA discovery payloads.
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// SensorConfig is the HA discovery payload for sensor.
type SensorConfig struct {
	Name              string   `json:"name"`
	ObjectID          string   `json:"object_id"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	Unit              string   `json:"unit_of_measurement,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Device            HADevice `json:"device"`
}

// BinarySensorConfig is the HA discovery payload for binary_sensor.
type BinarySensorConfig struct {
	Name              string   `json:"name"`
	ObjectID          string   `json:"object_id"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	PayloadOn         string   `json:"payload_on"`
	PayloadOff        string   `json:"payload_off"`
	Icon              string   `json:"icon,omitempty"`
	Device            HADevice `json:"device"`
}

// SafeObjectID sanitizes a string for use as an HA object_id.
// Replaces any non-alphanumeric character (except underscore) with underscore,
// lowercases, and trims leading/trailing underscores.
func SafeObjectID(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// buildHADevice creates the HA device block from appliance device info.
func buildHADevice(info *drive.DeviceInfo, host string) HADevice {
	name := info.Name
	if name == "" {
		name = host
	}
	sw := info.FirmwareVersion
	if sw == "" {
		sw = info.Version
	}
	return HADevice{
		Identifiers:  []string{"drivewatch_" + SafeObjectID(host)},
		Name:         name,
		Model:        info.Model,
		Manufacturer: "Ubiquiti",
		SWVersion:    sw,
	}
}

// BuildDiscoveryConfigs creates HA discovery payloads for one appliance.
// Topics match the state topics the publisher writes each cycle: appliance
// health, CPU, memory, storage totals, and one temperature sensor per disk.
func BuildDiscoveryConfigs(info *drive.DeviceInfo, storage *drive.StorageRoot, host, topicPrefix, haPrefix string) []DiscoveryConfig {
	if info == nil {
		return nil
	}

	applianceID := SafeObjectID(host)
	haDevice := buildHADevice(info, host)
	availability := topicPrefix + "/availability"

	configs := make([]DiscoveryConfig, 0, 8)

	addSensor := func(key, name, deviceClass, unit, icon string) {
		cfg := SensorConfig{
			Name:              haDevice.Name + " " + name,
			ObjectID:          "drivewatch_" + applianceID + "_" + key,
			UniqueID:          "drivewatch_" + applianceID + "_" + key,
			StateTopic:        topicPrefix + "/state/" + key,
			AvailabilityTopic: availability,
			DeviceClass:       deviceClass,
			StateClass:        "measurement",
			Unit:              unit,
			Icon:              icon,
			Device:            haDevice,
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			return
		}
		configs = append(configs, DiscoveryConfig{
			Topic:   fmt.Sprintf("%s/sensor/drivewatch_%s/%s/config", haPrefix, applianceID, key),
			Payload: payload,
			Retain:  true,
		})
	}

	// Binary sensor for overall appliance health.
	problemCfg := BinarySensorConfig{
		Name:              haDevice.Name + " Problem",
		ObjectID:          "drivewatch_" + applianceID + "_problem",
		UniqueID:          "drivewatch_" + applianceID + "_problem",
		StateTopic:        topicPrefix + "/state/problem",
		AvailabilityTopic: availability,
		DeviceClass:       "problem",
		PayloadOn:         "ON",
		PayloadOff:        "OFF",
		Device:            haDevice,
	}
	if payload, err := json.Marshal(problemCfg); err == nil {
		configs = append(configs, DiscoveryConfig{
			Topic:   fmt.Sprintf("%s/binary_sensor/drivewatch_%s/problem/config", haPrefix, applianceID),
			Payload: payload,
			Retain:  true,
		})
	}

	addSensor("cpu_load", "CPU Load", "", "%", "mdi:cpu-64-bit")
	addSensor("cpu_temperature", "CPU Temperature", "temperature", "°C", "")
	addSensor("memory_used_pct", "Memory Used", "", "%", "mdi:memory")

	if storage != nil {
		addSensor("storage_used_pct", "Storage Used", "", "%", "mdi:harddisk")
		addSensor("storage_free", "Storage Free", "data_size", "B", "mdi:harddisk")

		for _, disk := range storage.Disks {
			key := "disk_" + SafeObjectID(diskKey(disk)) + "_temperature"
			name := diskName(disk) + " Temperature"
			addSensor(key, name, "temperature", "°C", "")
		}
	}

	return configs
}

// diskKey returns a stable per-disk identifier for topics and object IDs.
func diskKey(d drive.Disk) string {
	if d.Serial != "" {
		return d.Serial
	}
	if d.ID != "" {
		return d.ID
	}
	return fmt.Sprintf("slot%d", d.Slot)
}

func diskName(d drive.Disk) string {
	if d.Slot > 0 {
		return fmt.Sprintf("Disk %d", d.Slot)
	}
	if d.Model != "" {
		return d.Model
	}
	return "Disk " + diskKey(d)
}
