package monitor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics (registered once).
var (
	activityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scadarange_activity_events_total",
			Help: "Activity log entries appended, by subsystem and type",
		},
		[]string{"subsystem", "type"},
	)
	connectionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scadarange_connection_decisions_total",
			Help: "Firewall connection decisions, by verdict and reason",
		},
		[]string{"allowed", "reason"},
	)
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scadarange_login_attempts_total",
			Help: "Firewall login attempts, by outcome",
		},
		[]string{"outcome"},
	)
	exploitAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scadarange_exploit_attempts_total",
			Help: "Exploitation runs, by target and outcome",
		},
		[]string{"target", "success"},
	)
	deviceCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scadarange_device_commands_total",
			Help: "SCADA device commands, by command and status",
		},
		[]string{"command", "status"},
	)
	gridCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scadarange_grid_capacity_mw",
			Help: "Total capacity of online power stations",
		},
	)
	gridLoad = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scadarange_grid_load_mw",
			Help: "Current load across online power stations",
		},
	)
	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scadarange_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(activityEvents)
	prometheus.MustRegister(connectionDecisions)
	prometheus.MustRegister(loginAttempts)
	prometheus.MustRegister(exploitAttempts)
	prometheus.MustRegister(deviceCommands)
	prometheus.MustRegister(gridCapacity)
	prometheus.MustRegister(gridLoad)
	prometheus.MustRegister(rateLimited)
}

// ObserveDecision counts a connection decision.
func ObserveDecision(allowed bool, reason string) {
	connectionDecisions.WithLabelValues(strconv.FormatBool(allowed), reason).Inc()
}

// ObserveLogin counts a login outcome (success, invalid, locked).
func ObserveLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveExploit counts an exploitation run.
func ObserveExploit(target string, success bool) {
	exploitAttempts.WithLabelValues(target, strconv.FormatBool(success)).Inc()
}

// ObserveCommand counts a device command.
func ObserveCommand(command, status string) {
	deviceCommands.WithLabelValues(command, status).Inc()
}

// ObserveGrid publishes the latest grid totals.
func ObserveGrid(capacity, load float64) {
	gridCapacity.Set(capacity)
	gridLoad.Set(load)
}
