package scada

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Micca1978/scadarange/pkg/types"
)

//go:embed catalog.yaml
var catalogYAML []byte

type profile struct {
	Credentials     types.Credentials `yaml:"credentials"`
	Vulnerabilities []string          `yaml:"vulnerabilities"`
}

type catalogEntry struct {
	ID               string           `yaml:"id"`
	Name             string           `yaml:"name"`
	Type             types.DeviceType `yaml:"type"`
	StationID        string           `yaml:"station_id"`
	City             string           `yaml:"city"`
	Capacity         float64          `yaml:"capacity"`
	Location         types.Location   `yaml:"location"`
	ConnectedDevices []string         `yaml:"connected_devices"`
	Vulnerabilities  []string         `yaml:"vulnerabilities"`
}

type catalog struct {
	Profiles map[types.DeviceType]profile `yaml:"profiles"`
	Devices  []catalogEntry               `yaml:"devices"`
}

// DefaultCatalog returns the built-in device estate without telemetry.
func DefaultCatalog() []types.Device {
	devices, err := ParseCatalog(catalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded device catalog: %v", err))
	}
	return devices
}

// LoadCatalog reads a device catalog from path.
func LoadCatalog(path string) ([]types.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog document. Devices inherit credentials and
// vulnerabilities from their type's profile unless they list their own
// vulnerabilities.
func ParseCatalog(data []byte) ([]types.Device, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(c.Devices))
	devices := make([]types.Device, 0, len(c.Devices))
	for _, e := range c.Devices {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog device %q has no id", e.Name)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate catalog device %s", e.ID)
		}
		seen[e.ID] = true

		p := c.Profiles[e.Type]
		creds := p.Credentials
		if creds.Username == "" {
			creds = types.Credentials{Username: "admin", Password: "admin"}
		}
		vulns := e.Vulnerabilities
		if len(vulns) == 0 {
			vulns = p.Vulnerabilities
		}

		d := types.Device{
			ID:               e.ID,
			Name:             e.Name,
			Type:             e.Type,
			Kind:             types.KindOf(e.Type),
			Status:           types.StatusOnline,
			StationID:        e.StationID,
			City:             e.City,
			Location:         e.Location,
			ConnectedDevices: append([]string(nil), e.ConnectedDevices...),
			Vulnerabilities:  append([]string(nil), vulns...),
			Credentials:      creds,
		}
		switch d.Kind {
		case types.KindGrid:
			d.Electrical = &types.Electrical{Capacity: e.Capacity}
		case types.KindDefense:
			d.Defense = &types.Defense{PowerStatus: "operational"}
		}
		devices = append(devices, d)
	}
	return devices, nil
}
