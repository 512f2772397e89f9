package scada

import (
	"github.com/Micca1978/scadarange/pkg/types"
)

const (
	nominalFrequency  = 50.0
	degradedFrequency = 49.5
	// stabilityMargin is the headroom capacity must keep over load.
	stabilityMargin = 1.1
)

// ComputeGrid derives grid health from the online power stations.
// It is a pure function of the devices passed in; LastUpdate is left zero.
func ComputeGrid(devices []*types.Device) types.GridStatus {
	var g types.GridStatus
	for _, d := range devices {
		if d.Type != types.DevicePowerStation {
			continue
		}
		g.StationsTotal++
		if d.Status != types.StatusOnline || d.Electrical == nil {
			continue
		}
		g.StationsOnline++
		g.TotalCapacity += d.Electrical.Capacity
		g.CurrentLoad += d.Electrical.Load * d.Electrical.Capacity
	}

	if g.TotalCapacity > g.CurrentLoad*stabilityMargin {
		g.GridStability = types.GridStable
		g.Frequency = nominalFrequency
		g.VoltageLevel = "normal"
	} else {
		g.GridStability = types.GridUnstable
		g.Frequency = degradedFrequency
		g.VoltageLevel = "low"
	}
	return g
}
