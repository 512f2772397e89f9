package types

import "time"

// DeviceType identifies the simulated equipment class.
type DeviceType string

const (
	DevicePowerStation DeviceType = "power_station"
	DevicePLC          DeviceType = "PLC"
	DeviceRTU          DeviceType = "RTU"
	DeviceHMI          DeviceType = "HMI"
	DeviceSCADAServer  DeviceType = "SCADA_SERVER"
	DeviceS400         DeviceType = "S400"
	DeviceDrone        DeviceType = "DRONE"
	DeviceAutonomous   DeviceType = "AUTONOMOUS"
	DeviceRadar        DeviceType = "RADAR"
	DeviceMissile      DeviceType = "MISSILE"
	DeviceFirewall     DeviceType = "FIREWALL"
	DeviceSwitch       DeviceType = "SWITCH"
)

// DeviceKind discriminates which attribute block a device carries.
type DeviceKind string

const (
	// KindGrid devices report electrical telemetry.
	KindGrid DeviceKind = "grid"
	// KindControl devices supervise other devices.
	KindControl DeviceKind = "control"
	// KindDefense devices report readiness instead of electrical telemetry.
	KindDefense DeviceKind = "defense"
)

// KindOf returns the attribute family for a device type.
func KindOf(t DeviceType) DeviceKind {
	switch t {
	case DeviceS400, DeviceDrone, DeviceAutonomous, DeviceRadar, DeviceMissile:
		return KindDefense
	case DeviceHMI, DeviceSCADAServer:
		return KindControl
	default:
		return KindGrid
	}
}

// DeviceStatus is the reachability state of a device.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
)

// Location places a device on the range map.
type Location struct {
	X   float64 `json:"x" yaml:"x"`
	Y   float64 `json:"y" yaml:"y"`
	Lat float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
}

// Credentials are the (deliberately weak) login pair shipped on a device.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// Electrical holds telemetry for grid devices. Capacity is non-zero only for power stations.
type Electrical struct {
	Voltage     float64 `json:"voltage"`
	Load        float64 `json:"load"`
	Temperature float64 `json:"temperature"`
	Capacity    float64 `json:"capacity,omitempty"`
}

// Defense holds readiness data for defense assets.
type Defense struct {
	PowerStatus string  `json:"power_status"`
	Readiness   float64 `json:"readiness"`
}

// Device is a simulated SCADA-connected asset.
type Device struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Type             DeviceType   `json:"type"`
	Kind             DeviceKind   `json:"kind"`
	Status           DeviceStatus `json:"status"`
	StationID        string       `json:"station_id,omitempty"`
	City             string       `json:"city,omitempty"`
	Location         Location     `json:"location"`
	ConnectedDevices []string     `json:"connected_devices,omitempty"`
	Vulnerabilities  []string     `json:"vulnerabilities"`
	Credentials      Credentials  `json:"credentials"`
	Electrical       *Electrical  `json:"electrical,omitempty"`
	Defense          *Defense     `json:"defense,omitempty"`
	LastUpdate       time.Time    `json:"last_update"`
}

// Clone returns a deep copy safe to hand outside a lock.
func (d *Device) Clone() Device {
	c := *d
	c.ConnectedDevices = append([]string(nil), d.ConnectedDevices...)
	c.Vulnerabilities = append([]string(nil), d.Vulnerabilities...)
	if d.Electrical != nil {
		e := *d.Electrical
		c.Electrical = &e
	}
	if d.Defense != nil {
		df := *d.Defense
		c.Defense = &df
	}
	return c
}

// GridStability is the aggregate health of the power grid.
type GridStability string

const (
	GridStable   GridStability = "stable"
	GridUnstable GridStability = "unstable"
)

// GridStatus is derived from the current state of the power stations.
type GridStatus struct {
	TotalCapacity  float64       `json:"total_capacity"`
	CurrentLoad    float64       `json:"current_load"`
	Frequency      float64       `json:"frequency"`
	VoltageLevel   string        `json:"voltage_level"`
	StationsOnline int           `json:"stations_online"`
	StationsTotal  int           `json:"stations_total"`
	GridStability  GridStability `json:"grid_stability"`
	LastUpdate     time.Time     `json:"last_update"`
}

// CommandRecord is an entry in the SCADA command log.
type CommandRecord struct {
	Timestamp  time.Time          `json:"timestamp"`
	DeviceID   string             `json:"device_id"`
	Command    string             `json:"command"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
	Executed   bool               `json:"executed"`
}

// CommandResult is returned by a successful device command.
type CommandResult struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Device     Device `json:"device"`
	GridImpact bool   `json:"grid_impact,omitempty"`
}

// ScadaStatus is a point-in-time snapshot of the SCADA subsystem.
type ScadaStatus struct {
	Compromised    bool            `json:"compromised"`
	GridStatus     GridStatus      `json:"grid_status"`
	DevicesOnline  int             `json:"devices_online"`
	DevicesTotal   int             `json:"devices_total"`
	RecentCommands []CommandRecord `json:"recent_commands"`
}

// NetworkDevice is an IT-side appliance (firewall, switch) in the range inventory.
type NetworkDevice struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Type            DeviceType         `json:"type"`
	Status          DeviceStatus       `json:"status"`
	IP              string             `json:"ip"`
	Location        Location           `json:"location"`
	Metrics         map[string]float64 `json:"metrics"`
	Config          map[string]any     `json:"config"`
	Vulnerabilities []string           `json:"vulnerabilities"`
}

// MapStation is the map-display projection of any device.
type MapStation struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Type        DeviceType         `json:"type"`
	Location    Location           `json:"location"`
	Status      DeviceStatus       `json:"status"`
	City        string             `json:"city,omitempty"`
	PowerStatus string             `json:"power_status,omitempty"`
	Readiness   *float64           `json:"readiness,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Link is an edge in the range topology.
type Link struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}
