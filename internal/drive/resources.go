package drive

import "encoding/json"

// Resource describes one pollable REST endpoint. Core resources must succeed
// for a cycle to be Ok; optional resources only degrade it.
type Resource struct {
	ID    string
	Path  string
	Core  bool
	Parse func(body []byte) (any, error)
}

func parseInto[T any](body []byte) (any, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func parseList[T any](body []byte) (any, error) {
	var v []T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ResourceDevice and friends are the stable resource IDs used as snapshot
// payload keys, history columns, and MQTT topic segments.
const (
	ResourceDevice     = "device"
	ResourceStorage    = "storage"
	ResourceDrives     = "drives"
	ResourceVolumes    = "volumes"
	ResourceShares     = "shares"
	ResourceFanControl = "fan_control"
)

// DefaultResources returns the known Drive API resource set, core resources
// first. The aggregator relies on this ordering.
func DefaultResources() []Resource {
	return []Resource{
		{ID: ResourceDevice, Path: "/proxy/drive/api/v2/systems/device-info", Core: true, Parse: parseInto[DeviceInfo]},
		{ID: ResourceStorage, Path: "/proxy/drive/api/v2/storage", Core: true, Parse: parseInto[StorageRoot]},
		{ID: ResourceDrives, Path: "/proxy/drive/api/v2/drives", Parse: parseInto[DriveList]},
		{ID: ResourceVolumes, Path: "/proxy/drive/api/v2/volumes", Parse: parseList[Volume]},
		{ID: ResourceShares, Path: "/proxy/drive/api/v2/shares", Parse: parseList[Share]},
		{ID: ResourceFanControl, Path: "/proxy/drive/api/v2/systems/fan-control", Parse: parseInto[FanControl]},
	}
}
