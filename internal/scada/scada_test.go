package scada

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Micca1978/scadarange/internal/config"
	"github.com/Micca1978/scadarange/internal/exploit"
	"github.com/Micca1978/scadarange/internal/monitor"
	"github.com/Micca1978/scadarange/pkg/types"
)

func half() float64 { return 0.5 }

func newEngine(t *testing.T, roll func() float64) (*Engine, *monitor.ActivityLog) {
	t.Helper()
	log := monitor.NewActivityLog("scada", 100)
	cfg := config.ExploitConfig{Scada: 0.6}
	model := exploit.NewModel(exploit.WithSource(roll))
	e := NewEngine(DefaultCatalog(), model, exploit.ScadaTrials(cfg), log,
		WithSource(half),
		WithClock(func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }),
	)
	return e, log
}

func TestDefaultCatalog(t *testing.T) {
	devices := DefaultCatalog()
	require.Len(t, devices, 21)

	byID := map[string]types.Device{}
	for _, d := range devices {
		byID[d.ID] = d
	}

	station := byID["station-2"]
	assert.Equal(t, types.KindGrid, station.Kind)
	require.NotNil(t, station.Electrical)
	assert.Equal(t, 750.0, station.Electrical.Capacity)
	assert.Equal(t, "operator", station.Credentials.Username)

	s400 := byID["s400-1"]
	assert.Equal(t, types.KindDefense, s400.Kind)
	assert.Nil(t, s400.Electrical)
	require.NotNil(t, s400.Defense)
	assert.Equal(t, "operational", s400.Defense.PowerStatus)

	hmi := byID["hmi-1"]
	assert.Equal(t, types.KindControl, hmi.Kind)
	assert.Equal(t, []string{"default_credentials", "unencrypted_communication"}, hmi.Vulnerabilities)
	assert.Equal(t, "admin123", hmi.Credentials.Password)
	assert.Len(t, byID["scada-server-1"].ConnectedDevices, 8)
}

func TestParseCatalog_Errors(t *testing.T) {
	_, err := ParseCatalog([]byte("devices:\n  - {name: nameless, type: PLC}\n"))
	require.Error(t, err)

	_, err = ParseCatalog([]byte("devices:\n  - {id: a, type: PLC}\n  - {id: a, type: RTU}\n"))
	require.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `profiles:
  PLC:
    credentials: {username: plc, password: plc123}
    vulnerabilities: [modbus_unauthenticated]
devices:
  - {id: station-9, name: Test Station, type: power_station, capacity: 400}
  - {id: plc-9, name: Test PLC, type: PLC, station_id: station-9}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	devices, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "station-9", devices[0].ID)
	require.NotNil(t, devices[0].Electrical)
	assert.Equal(t, 400.0, devices[0].Electrical.Capacity)
	assert.Equal(t, "plc", devices[1].Credentials.Username)
	assert.Equal(t, []string{"modbus_unauthenticated"}, devices[1].Vulnerabilities)

	e := NewEngine(devices, exploit.NewModel(), nil, monitor.NewActivityLog("scada", 10), WithSource(half))
	assert.Equal(t, 400.0, e.Grid().TotalCapacity)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestNewEngine_InitialGrid(t *testing.T) {
	e, _ := newEngine(t, half)
	g := e.Grid()

	assert.Equal(t, 1850.0, g.TotalCapacity)
	assert.InDelta(t, 1110.0, g.CurrentLoad, 1e-9)
	assert.Equal(t, 3, g.StationsOnline)
	assert.Equal(t, 3, g.StationsTotal)
	assert.Equal(t, types.GridStable, g.GridStability)
	assert.Equal(t, 50.0, g.Frequency)
	assert.Equal(t, "normal", g.VoltageLevel)

	d, err := e.Device("s400-2")
	require.NoError(t, err)
	assert.InDelta(t, 0.925, d.Defense.Readiness, 1e-9)
}

func TestExecute_SetLoadClamps(t *testing.T) {
	e, _ := newEngine(t, half)

	res, err := e.Execute("plc-1", CommandSetLoad, map[string]float64{"load": 1.5})
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, 1.0, res.Device.Electrical.Load)

	res, err = e.Execute("plc-1", CommandSetLoad, map[string]float64{"load": -0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Device.Electrical.Load)
}

func TestExecute_SetVoltageIsNotClamped(t *testing.T) {
	e, _ := newEngine(t, half)

	res, err := e.Execute("rtu-2", CommandSetVoltage, map[string]float64{"voltage": 99999})
	require.NoError(t, err)
	assert.Equal(t, 99999.0, res.Device.Electrical.Voltage)
	assert.Equal(t, "Voltage set to 99999V", res.Message)
}

func TestExecute_CutPower(t *testing.T) {
	e, _ := newEngine(t, half)
	before := e.Grid()

	res, err := e.Execute("station-1", CommandCutPower, nil)
	require.NoError(t, err)
	assert.True(t, res.GridImpact)
	assert.Equal(t, types.StatusOffline, res.Device.Status)
	assert.Equal(t, 0.0, res.Device.Electrical.Voltage)

	after := e.Grid()
	assert.Equal(t, before.TotalCapacity-500, after.TotalCapacity)
	assert.Equal(t, before.StationsOnline-1, after.StationsOnline)
	assert.Equal(t, 3, after.StationsTotal)
}

func TestExecute_CutPowerOnlyForStations(t *testing.T) {
	e, _ := newEngine(t, half)

	_, err := e.Execute("plc-1", CommandCutPower, nil)
	require.ErrorIs(t, err, ErrUnknownCommand)

	d, err := e.Device("plc-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOnline, d.Status)
}

func TestExecute_OverloadMakesGridUnstable(t *testing.T) {
	e, _ := newEngine(t, half)

	for _, id := range []string{"station-1", "station-2", "station-3"} {
		_, err := e.Execute(id, CommandSetLoad, map[string]float64{"load": 1})
		require.NoError(t, err)
	}

	g := e.Grid()
	assert.Equal(t, types.GridUnstable, g.GridStability)
	assert.Equal(t, 49.5, g.Frequency)
	assert.Equal(t, "low", g.VoltageLevel)
}

func TestExecute_OfflineRejectsEverything(t *testing.T) {
	e, _ := newEngine(t, half)

	_, err := e.Execute("rtu-1", CommandShutdown, nil)
	require.NoError(t, err)
	logged := len(e.Status().RecentCommands)

	for _, cmd := range []string{CommandRestart, CommandSetLoad, CommandShutdown, "bogus"} {
		_, err := e.Execute("rtu-1", cmd, nil)
		require.ErrorIs(t, err, ErrDeviceOffline, cmd)
	}
	assert.Len(t, e.Status().RecentCommands, logged)
}

func TestExecute_ShutdownAndRestart(t *testing.T) {
	e, _ := newEngine(t, half)

	res, err := e.Execute("station-3", CommandShutdown, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Device.Electrical.Load)
	assert.Equal(t, 2, e.Grid().StationsOnline)

	// a defense asset picks up electrical telemetry when commanded
	res, err = e.Execute("radar-1", CommandRestart, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Device.Electrical)
	assert.Equal(t, 230.0, res.Device.Electrical.Voltage)
	assert.InDelta(t, 0.6, res.Device.Electrical.Load, 1e-9)
}

func TestExecute_UnknownCommandIsLogged(t *testing.T) {
	e, _ := newEngine(t, half)

	_, err := e.Execute("plc-2", "overclock", nil)
	var uce *UnknownCommandError
	require.ErrorAs(t, err, &uce)
	assert.Equal(t, "overclock", uce.Command)

	cmds := e.Status().RecentCommands
	require.Len(t, cmds, 1)
	assert.Equal(t, "overclock", cmds[0].Command)
}

func TestExecute_UnknownDevice(t *testing.T) {
	e, _ := newEngine(t, half)
	_, err := e.Execute("plc-99", CommandShutdown, nil)
	require.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = e.Device("plc-99")
	require.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestStatus_LastTwentyCommands(t *testing.T) {
	e, log := newEngine(t, half)
	for i := 0; i < 25; i++ {
		_, err := e.Execute("plc-3", CommandSetVoltage, map[string]float64{"voltage": float64(i)})
		require.NoError(t, err)
	}

	s := e.Status()
	require.Len(t, s.RecentCommands, 20)
	assert.Equal(t, 5.0, s.RecentCommands[0].Parameters["voltage"])
	assert.Equal(t, 24.0, s.RecentCommands[19].Parameters["voltage"])
	assert.Equal(t, 21, s.DevicesTotal)
	assert.Equal(t, 21, s.DevicesOnline)
	assert.Equal(t, 25, log.Len())
}

func TestAttemptExploit(t *testing.T) {
	rolls := []float64{0.9, 0.1}
	i := 0
	e, log := newEngine(t, func() float64 {
		r := rolls[i%len(rolls)]
		i++
		return r
	})

	res := e.AttemptExploit()
	assert.False(t, res.Success)
	assert.False(t, e.Flag().IsSet())

	res = e.AttemptExploit()
	assert.True(t, res.Success)
	assert.Equal(t, "default_credentials", res.Method)
	assert.True(t, e.Status().Compromised)
	assert.Equal(t, "exploit_success", log.Recent(1)[0].Type)
}

func TestComputeGrid_Pure(t *testing.T) {
	station := func(id string, capacity, load float64, status types.DeviceStatus) *types.Device {
		return &types.Device{
			ID:         id,
			Type:       types.DevicePowerStation,
			Status:     status,
			Electrical: &types.Electrical{Capacity: capacity, Load: load},
		}
	}

	tests := []struct {
		name      string
		devices   []*types.Device
		capacity  float64
		stability types.GridStability
	}{
		{"empty grid is unstable", nil, 0, types.GridUnstable},
		{"fully loaded station is unstable", []*types.Device{station("a", 110, 1, types.StatusOnline)}, 110, types.GridUnstable},
		{"offline stations ignored", []*types.Device{
			station("a", 100, 0.5, types.StatusOnline),
			station("b", 900, 1, types.StatusOffline),
		}, 100, types.GridStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ComputeGrid(tt.devices)
			assert.Equal(t, tt.capacity, g.TotalCapacity)
			assert.Equal(t, tt.stability, g.GridStability, fmt.Sprintf("%+v", g))
		})
	}
}
