package drive

// Payload types for the Drive API v2 resources. Field coverage follows what
// the appliance actually reports; unknown fields are ignored on decode.

// DeviceInfo is the /systems/device-info payload.
type DeviceInfo struct {
	Name              string `json:"name"`
	Model             string `json:"model"`
	Status            string `json:"status"`
	Version           string `json:"version"`
	FirmwareVersion   string `json:"firmwareVersion"`
	CPU               CPU    `json:"cpu"`
	Memory            Memory `json:"memory"`
	NetworkInterfaces []NIC  `json:"networkInterfaces"`
	UptimeSeconds     int64  `json:"uptime"`
}

// CPU holds CPU load and temperature. CurrentLoad is a 0..1 fraction on
// current firmware but older releases report 0..100.
type CPU struct {
	CurrentLoad float64 `json:"currentload"`
	Temperature float64 `json:"temperature"`
}

// Memory reports sizes in bytes.
type Memory struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Free      int64 `json:"free"`
}

// NIC is one entry of networkInterfaces.
type NIC struct {
	Interface     string `json:"interface"`
	InterfaceName string `json:"interfaceName"`
	Address       string `json:"address"`
	MAC           string `json:"mac"`
	Connected     bool   `json:"connected"`
	LinkSpeedMbps int    `json:"linkSpeed"`
}

// StorageRoot is the /storage payload: pool-level totals plus physical disks.
type StorageRoot struct {
	Total int64  `json:"total"`
	Used  int64  `json:"used"`
	Free  int64  `json:"free"`
	Disks []Disk `json:"disks"`
}

// Disk is one physical disk with SMART attributes.
type Disk struct {
	ID            string  `json:"id"`
	Slot          int     `json:"slot"`
	Model         string  `json:"model"`
	Serial        string  `json:"serial"`
	State         string  `json:"state"`
	Size          int64   `json:"size"`
	RPM           int     `json:"rpm"`
	Temperature   float64 `json:"temperature"`
	PowerOnHours  int64   `json:"poweronhrs"`
	BadSectors    int64   `json:"badSector"`
	Uncorrectable int64   `json:"uncorrectable"`
	ReadErrorRate int64   `json:"readErrorRate"`
}

// DriveList is the /drives payload.
type DriveList struct {
	Drives []Drive `json:"drives"`
}

// Drive is a logical shared drive on the appliance.
type Drive struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Type          string      `json:"type"`
	Status        string      `json:"status"`
	Usage         int64       `json:"usage"`
	StoragePoolID string      `json:"storagePoolId"`
	Members       []Member    `json:"members"`
	Protections   Protections `json:"protections"`
}

// Member is a user or group granted access to a drive.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Protections holds per-drive data-protection settings.
type Protections struct {
	SnapshotEnabled bool `json:"snapshotEnabled"`
}

// Volume is one entry of the /volumes payload.
type Volume struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Total  int64  `json:"total"`
	Used   int64  `json:"used"`
}

// Share is one entry of the /shares payload.
type Share struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Enabled  bool   `json:"enabled"`
}

// FanControl is the /systems/fan-control payload.
type FanControl struct {
	Profile string `json:"profile"`
	RPM     int    `json:"rpm"`
}
