// Package scada simulates the SCADA device estate and the power grid it drives.
package scada

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Micca1978/scadarange/internal/exploit"
	"github.com/Micca1978/scadarange/internal/monitor"
	"github.com/Micca1978/scadarange/pkg/types"
)

// Commands accepted by Execute.
const (
	CommandSetVoltage = "set_voltage"
	CommandSetLoad    = "set_load"
	CommandShutdown   = "shutdown"
	CommandRestart    = "restart"
	CommandCutPower   = "cut_power"
)

// recentCommands is how many command log entries Status exposes.
const recentCommands = 20

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceOffline  = errors.New("device is offline")
	ErrUnknownCommand = errors.New("unknown command")
)

// NotFoundError reports an unknown device id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("device %s not found", e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrDeviceNotFound }

// DeviceOfflineError reports a command sent to a device that is not online.
type DeviceOfflineError struct {
	ID string
}

func (e *DeviceOfflineError) Error() string { return fmt.Sprintf("device %s is offline", e.ID) }

func (e *DeviceOfflineError) Is(target error) bool { return target == ErrDeviceOffline }

// UnknownCommandError reports a command the device cannot run.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string { return fmt.Sprintf("Unknown command: %s", e.Command) }

func (e *UnknownCommandError) Is(target error) bool { return target == ErrUnknownCommand }

// Engine owns the device registry, the derived grid status and the command log.
// A device mutation and the grid recompute it triggers happen under one lock.
type Engine struct {
	devices  map[string]*types.Device
	order    []string
	grid     types.GridStatus
	commands []types.CommandRecord

	flag   *exploit.Flag
	model  *exploit.Model
	trials []exploit.Trial
	log    *monitor.ActivityLog

	roll func() float64
	now  func() time.Time
	mu   sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithSource replaces the uniform [0,1) source used for telemetry.
func WithSource(roll func() float64) Option {
	return func(e *Engine) {
		e.roll = roll
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine powers up devices with fresh telemetry and computes the initial grid.
// model and trials drive AttemptExploit; log receives command and exploit entries.
func NewEngine(devices []types.Device, model *exploit.Model, trials []exploit.Trial, log *monitor.ActivityLog, opts ...Option) *Engine {
	e := &Engine{
		devices: make(map[string]*types.Device, len(devices)),
		order:   make([]string, 0, len(devices)),
		flag:    &exploit.Flag{},
		model:   model,
		trials:  trials,
		log:     log,
		roll:    rand.Float64,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	now := e.now()
	for i := range devices {
		d := devices[i].Clone()
		e.powerUp(&d)
		d.LastUpdate = now
		if _, dup := e.devices[d.ID]; !dup {
			e.order = append(e.order, d.ID)
		}
		e.devices[d.ID] = &d
	}
	e.recomputeLocked()
	return e
}

func (e *Engine) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*e.roll()
}

// powerUp fills in initial telemetry for a catalog device.
func (e *Engine) powerUp(d *types.Device) {
	if d.Status == "" {
		d.Status = types.StatusOnline
	}
	switch d.Kind {
	case types.KindGrid:
		if d.Electrical == nil {
			d.Electrical = &types.Electrical{}
		}
		if d.Type == types.DevicePowerStation {
			d.Electrical.Voltage = e.uniform(11000, 13200)
		} else {
			d.Electrical.Voltage = e.uniform(220, 240)
		}
		d.Electrical.Load = e.uniform(0.4, 0.8)
		d.Electrical.Temperature = e.uniform(30, 45)
	case types.KindDefense:
		if d.Defense == nil {
			d.Defense = &types.Defense{PowerStatus: "operational"}
		}
		d.Defense.Readiness = e.uniform(0.85, 1.0)
	}
}

// Flag returns the SCADA compromise flag.
func (e *Engine) Flag() *exploit.Flag {
	return e.flag
}

// Devices returns every device in catalog order.
func (e *Engine) Devices() []types.Device {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.Device, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.devices[id].Clone())
	}
	return out
}

// Device returns one device by id.
func (e *Engine) Device(id string) (types.Device, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.devices[id]
	if !ok {
		return types.Device{}, &NotFoundError{ID: id}
	}
	return d.Clone(), nil
}

// Grid returns the current grid status.
func (e *Engine) Grid() types.GridStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.grid
}

// Status returns a snapshot of the SCADA subsystem.
func (e *Engine) Status() types.ScadaStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	online := 0
	for _, d := range e.devices {
		if d.Status == types.StatusOnline {
			online++
		}
	}

	start := max(len(e.commands)-recentCommands, 0)
	recent := make([]types.CommandRecord, len(e.commands)-start)
	copy(recent, e.commands[start:])

	return types.ScadaStatus{
		Compromised:    e.flag.IsSet(),
		GridStatus:     e.grid,
		DevicesOnline:  online,
		DevicesTotal:   len(e.devices),
		RecentCommands: recent,
	}
}

// Execute runs command on a device. Offline devices reject every command and
// nothing is logged for them; any command reaching an online device is logged,
// including unknown ones.
func (e *Engine) Execute(deviceID, command string, params map[string]float64) (types.CommandResult, error) {
	result, err := e.execute(deviceID, command, params)

	status := "success"
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		status = "not_found"
	case errors.Is(err, ErrDeviceOffline):
		status = "offline"
	case errors.Is(err, ErrUnknownCommand):
		status = "unknown"
	}
	monitor.ObserveCommand(command, status)

	if err == nil {
		e.log.Append("scada_command", fmt.Sprintf("%s on %s: %s", command, deviceID, result.Message))
	}
	return result, err
}

func (e *Engine) execute(deviceID, command string, params map[string]float64) (types.CommandResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.devices[deviceID]
	if !ok {
		return types.CommandResult{}, &NotFoundError{ID: deviceID}
	}
	if d.Status != types.StatusOnline {
		return types.CommandResult{}, &DeviceOfflineError{ID: deviceID}
	}

	now := e.now()
	e.commands = append(e.commands, types.CommandRecord{
		Timestamp:  now,
		DeviceID:   deviceID,
		Command:    command,
		Parameters: maps.Clone(params),
		Executed:   true,
	})

	var (
		message    string
		gridImpact bool
	)
	switch command {
	case CommandSetVoltage:
		voltage, ok := params["voltage"]
		if !ok {
			voltage = 230
			if d.Electrical != nil {
				voltage = d.Electrical.Voltage
			}
		}
		electrical(d).Voltage = voltage
		message = fmt.Sprintf("Voltage set to %gV", voltage)

	case CommandSetLoad:
		load, ok := params["load"]
		if !ok {
			load = 0.5
			if d.Electrical != nil {
				load = d.Electrical.Load
			}
		}
		elec := electrical(d)
		elec.Load = min(max(load, 0), 1.0)
		message = fmt.Sprintf("Load set to %g%%", elec.Load*100)

	case CommandShutdown:
		d.Status = types.StatusOffline
		elec := electrical(d)
		elec.Voltage = 0
		elec.Load = 0
		message = "Device shut down"

	case CommandRestart:
		d.Status = types.StatusOnline
		elec := electrical(d)
		elec.Voltage = e.uniform(220, 240)
		elec.Load = e.uniform(0.4, 0.8)
		message = "Device restarted"

	case CommandCutPower:
		if d.Type != types.DevicePowerStation {
			return types.CommandResult{}, &UnknownCommandError{Command: command}
		}
		d.Status = types.StatusOffline
		electrical(d).Voltage = 0
		message = fmt.Sprintf("Power cut to %s", d.Name)
		gridImpact = true

	default:
		return types.CommandResult{}, &UnknownCommandError{Command: command}
	}

	d.LastUpdate = now
	e.recomputeLocked()

	return types.CommandResult{
		Status:     "success",
		Message:    message,
		Device:     d.Clone(),
		GridImpact: gridImpact,
	}, nil
}

// electrical returns d's electrical block, attaching an empty one to devices
// that never carried telemetry.
func electrical(d *types.Device) *types.Electrical {
	if d.Electrical == nil {
		d.Electrical = &types.Electrical{}
	}
	return d.Electrical
}

func (e *Engine) recomputeLocked() {
	devices := make([]*types.Device, 0, len(e.order))
	for _, id := range e.order {
		devices = append(devices, e.devices[id])
	}
	e.grid = ComputeGrid(devices)
	e.grid.LastUpdate = e.now()
	monitor.ObserveGrid(e.grid.TotalCapacity, e.grid.CurrentLoad)
}

// AttemptExploit runs the SCADA default-credentials trial.
func (e *Engine) AttemptExploit() types.ExploitResult {
	return e.model.Attempt(exploit.Target{
		Name:           "scada",
		Trials:         e.trials,
		Flag:           e.flag,
		Log:            e.log,
		SuccessMessage: "SCADA system compromised via default credentials!",
		FailureMessage: "Exploitation attempt failed",
	}, nil)
}
