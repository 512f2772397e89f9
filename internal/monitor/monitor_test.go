package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Micca1978/scadarange/internal/config"
	"github.com/Micca1978/scadarange/pkg/types"
)

func TestActivityLog_EvictsOldestPastCapacity(t *testing.T) {
	l := NewActivityLog("firewall", 3)
	for i := 1; i <= 5; i++ {
		l.Append("rule_added", fmt.Sprintf("entry %d", i))
	}

	require.Equal(t, 3, l.Len())
	got := l.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "entry 3", got[0].Message)
	assert.Equal(t, "entry 4", got[1].Message)
	assert.Equal(t, "entry 5", got[2].Message)
}

func TestActivityLog_RecentLimit(t *testing.T) {
	l := NewActivityLog("firewall", 10)
	for i := 1; i <= 4; i++ {
		l.Append("connection_attempt", fmt.Sprintf("entry %d", i))
	}

	got := l.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, "entry 3", got[0].Message)
	assert.Equal(t, "entry 4", got[1].Message)

	assert.Len(t, l.Recent(100), 4)
}

func TestActivityLog_DefaultCapacity(t *testing.T) {
	l := NewActivityLog("scada", 0)
	for i := 0; i < DefaultLogCapacity+25; i++ {
		l.Append("command", "x")
	}
	assert.Equal(t, DefaultLogCapacity, l.Len())
}

func TestActivityLog_ClockAndSink(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := NewActivityLog("firewall", 5)
	l.SetClock(func() time.Time { return fixed })

	var seen []string
	l.SetSink(func(subsystem string, entry types.LogEntry) {
		seen = append(seen, subsystem+":"+entry.Type)
	})

	entry := l.Append("ips_toggled", "IPS disabled")
	assert.Equal(t, fixed, entry.Timestamp)
	assert.Equal(t, []string{"firewall:ips_toggled"}, seen)
}

func TestMonitor_NewLogRecordsThroughLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	m := NewMonitor(&config.MonitoringConfig{LogCapacity: 10}, logger)

	var handled []types.LogEntry
	m.SetEventHandler(func(subsystem string, entry types.LogEntry) {
		handled = append(handled, entry)
	})

	l := m.NewLog("firewall")
	l.Append("exploit_success", "Firewall compromised!")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "firewall", hook.LastEntry().Data["subsystem"])
	assert.Equal(t, "exploit_success", hook.LastEntry().Data["event_type"])
	require.Len(t, handled, 1)
	assert.Equal(t, "Firewall compromised!", handled[0].Message)
}

func TestMonitor_CheckRateLimit(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("disabled always allows", func(t *testing.T) {
		m := NewMonitor(&config.MonitoringConfig{RateLimitEnabled: false, RateLimitMax: 1}, logger)
		for i := 0; i < 5; i++ {
			assert.True(t, m.CheckRateLimit("10.0.0.1"))
		}
	})

	t.Run("blocks within window and recovers after", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		m := NewMonitor(&config.MonitoringConfig{
			RateLimitEnabled: true,
			RateLimitWindow:  time.Minute,
			RateLimitMax:     2,
		}, logger)
		m.now = func() time.Time { return now }

		assert.True(t, m.CheckRateLimit("10.0.0.1"))
		assert.True(t, m.CheckRateLimit("10.0.0.1"))
		assert.False(t, m.CheckRateLimit("10.0.0.1"))
		assert.True(t, m.CheckRateLimit("10.0.0.2"), "keys are independent")

		now = now.Add(61 * time.Second)
		assert.True(t, m.CheckRateLimit("10.0.0.1"))
	})

	t.Run("forgets idle keys", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		m := NewMonitor(&config.MonitoringConfig{
			RateLimitEnabled: true,
			RateLimitWindow:  time.Minute,
			RateLimitMax:     5,
		}, logger)
		m.now = func() time.Time { return now }

		for i := 0; i < 50; i++ {
			require.True(t, m.CheckRateLimit(fmt.Sprintf("10.0.1.%d", i)))
		}
		assert.Len(t, m.rateLimiter, 50)

		now = now.Add(30 * time.Second)
		require.True(t, m.CheckRateLimit("10.0.2.1"))
		assert.Len(t, m.rateLimiter, 51, "keys inside the window are kept")

		now = now.Add(45 * time.Second)
		require.True(t, m.CheckRateLimit("10.0.2.2"))
		assert.Len(t, m.rateLimiter, 2)
		assert.Contains(t, m.rateLimiter, "10.0.2.1")
		assert.Contains(t, m.rateLimiter, "10.0.2.2")
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, parseLogLevel("nonsense"))
}
