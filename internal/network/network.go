// Package network models the IT side of the range and the map topology that
// joins it to the SCADA estate.
package network

import (
	"errors"
	"fmt"
	"maps"

	"github.com/Micca1978/scadarange/pkg/types"
)

// ErrDeviceNotFound is returned when neither the SCADA estate nor the
// inventory knows an id.
var ErrDeviceNotFound = errors.New("device not found")

// Link types reported by Connections.
const (
	LinkScada    = "scada_connection"
	LinkHMI      = "hmi_connection"
	LinkNetwork  = "network_connection"
	LinkMilitary = "military_connection"
)

// DeviceSource is the SCADA estate as seen by the inventory.
type DeviceSource interface {
	Devices() []types.Device
}

// Listing groups every device in the range.
type Listing struct {
	Scada   []types.Device        `json:"scada_devices"`
	Network []types.NetworkDevice `json:"network_devices"`
}

// Inventory joins the SCADA estate with the network appliances in front of it.
type Inventory struct {
	scada   DeviceSource
	devices []types.NetworkDevice
	links   []types.Link
	ips     func() bool
}

// NewInventory creates an inventory. ips, when set, reports the live IPS state
// shown in the firewall's config block.
func NewInventory(scada DeviceSource, ips func() bool) *Inventory {
	return &Inventory{
		scada:   scada,
		devices: defaultAppliances(),
		links: []types.Link{
			{From: "firewall-1", To: "switch-1", Type: LinkNetwork},
			{From: "switch-1", To: "switch-2", Type: LinkNetwork},
			{From: "switch-2", To: "scada-server-1", Type: LinkNetwork},
		},
		ips: ips,
	}
}

func defaultAppliances() []types.NetworkDevice {
	return []types.NetworkDevice{
		{
			ID:       "firewall-1",
			Name:     "NextGen Firewall",
			Type:     types.DeviceFirewall,
			Status:   types.StatusOnline,
			IP:       "192.168.1.1",
			Location: types.Location{X: 50, Y: 50},
			Metrics: map[string]float64{
				"cpu_usage":              45,
				"memory_usage":           60,
				"connections_per_second": 1200,
				"blocked_connections":    150,
			},
			Config: map[string]any{
				"model":          "FortiGate-600E",
				"firmware":       "v6.4.5",
				"ips_enabled":    true,
				"ssl_inspection": true,
			},
			Vulnerabilities: []string{"weak_admin_password", "default_credentials", "unpatched_firmware"},
		},
		{
			ID:       "switch-1",
			Name:     "Core Switch",
			Type:     types.DeviceSwitch,
			Status:   types.StatusOnline,
			IP:       "192.168.1.2",
			Location: types.Location{X: 200, Y: 50},
			Metrics: map[string]float64{
				"ports_active":    24,
				"ports_total":     48,
				"throughput_mbps": 1000,
				"packet_loss":     0.01,
			},
			Config: map[string]any{
				"model":       "Cisco Catalyst 9300",
				"vlan_count":  5,
				"stp_enabled": true,
			},
			Vulnerabilities: []string{"default_credentials", "snmp_weak"},
		},
		{
			ID:       "switch-2",
			Name:     "Distribution Switch",
			Type:     types.DeviceSwitch,
			Status:   types.StatusOnline,
			IP:       "192.168.1.3",
			Location: types.Location{X: 350, Y: 50},
			Metrics: map[string]float64{
				"ports_active":    12,
				"ports_total":     24,
				"throughput_mbps": 500,
				"packet_loss":     0.02,
			},
			Config: map[string]any{
				"model":       "Cisco Catalyst 2960",
				"vlan_count":  3,
				"stp_enabled": true,
			},
			Vulnerabilities: []string{"default_credentials"},
		},
	}
}

// Appliances returns the network devices.
func (i *Inventory) Appliances() []types.NetworkDevice {
	out := make([]types.NetworkDevice, 0, len(i.devices))
	for _, d := range i.devices {
		out = append(out, i.snapshot(d))
	}
	return out
}

func (i *Inventory) snapshot(d types.NetworkDevice) types.NetworkDevice {
	d.Metrics = maps.Clone(d.Metrics)
	d.Config = maps.Clone(d.Config)
	d.Vulnerabilities = append([]string(nil), d.Vulnerabilities...)
	if d.Type == types.DeviceFirewall && i.ips != nil {
		d.Config["ips_enabled"] = i.ips()
	}
	return d
}

// Devices returns the SCADA estate and the appliances.
func (i *Inventory) Devices() Listing {
	return Listing{
		Scada:   i.scada.Devices(),
		Network: i.Appliances(),
	}
}

// Device looks an id up in the SCADA estate first, then the appliances.
// The result is a types.Device or a types.NetworkDevice.
func (i *Inventory) Device(id string) (any, error) {
	for _, d := range i.scada.Devices() {
		if d.ID == id {
			return d, nil
		}
	}
	for _, d := range i.devices {
		if d.ID == id {
			return i.snapshot(d), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// MapStations projects every device onto the range map. Defense assets carry
// power status and readiness; everything else carries metrics.
func (i *Inventory) MapStations() []types.MapStation {
	scada := i.scada.Devices()
	stations := make([]types.MapStation, 0, len(scada)+len(i.devices))

	for _, d := range scada {
		s := types.MapStation{
			ID:       d.ID,
			Name:     d.Name,
			Type:     d.Type,
			Location: d.Location,
			Status:   d.Status,
			City:     d.City,
		}
		if d.Kind == types.KindDefense && d.Defense != nil {
			readiness := d.Defense.Readiness
			s.PowerStatus = d.Defense.PowerStatus
			s.Readiness = &readiness
		} else {
			var e types.Electrical
			if d.Electrical != nil {
				e = *d.Electrical
			}
			s.Metrics = map[string]float64{
				"voltage":     e.Voltage,
				"load":        e.Load,
				"temperature": e.Temperature,
			}
		}
		stations = append(stations, s)
	}

	for _, d := range i.devices {
		stations = append(stations, types.MapStation{
			ID:       d.ID,
			Name:     d.Name,
			Type:     d.Type,
			Location: d.Location,
			Status:   d.Status,
			Metrics:  maps.Clone(d.Metrics),
		})
	}
	return stations
}

// Connections returns the topology edges: SCADA server and HMI links to the
// devices they supervise, the appliance chain, and defense assets to the
// station that powers them.
func (i *Inventory) Connections() []types.Link {
	scada := i.scada.Devices()
	known := make(map[string]bool, len(scada))
	for _, d := range scada {
		known[d.ID] = true
	}

	var links []types.Link
	for _, kind := range []struct {
		device types.DeviceType
		link   string
	}{
		{types.DeviceSCADAServer, LinkScada},
		{types.DeviceHMI, LinkHMI},
	} {
		for _, d := range scada {
			if d.Type != kind.device {
				continue
			}
			for _, to := range d.ConnectedDevices {
				if known[to] {
					links = append(links, types.Link{From: d.ID, To: to, Type: kind.link})
				}
			}
		}
	}

	links = append(links, i.links...)

	for _, d := range scada {
		if d.Kind == types.KindDefense && d.StationID != "" {
			links = append(links, types.Link{From: d.StationID, To: d.ID, Type: LinkMilitary})
		}
	}
	return links
}
