// Package exploit models pedagogical compromise attempts against range subsystems.
// Outcomes are probability gates, not exploits.
package exploit

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/Micca1978/scadarange/internal/config"
	"github.com/Micca1978/scadarange/internal/monitor"
	"github.com/Micca1978/scadarange/pkg/types"
)

// Flag marks a subsystem as compromised. It only ever moves from false to true.
type Flag struct {
	v atomic.Bool
}

// Set marks the subsystem compromised and reports whether this call changed it.
func (f *Flag) Set() bool {
	return f.v.CompareAndSwap(false, true)
}

// IsSet reports whether the subsystem is compromised.
func (f *Flag) IsSet() bool {
	return f.v.Load()
}

// Trial is one independent Bernoulli attempt, gated on a vulnerability being present.
type Trial struct {
	Method        string
	Vulnerability string
	Probability   float64
	Message       string
}

// Target describes what an exploitation run acts on.
type Target struct {
	Name           string
	Trials         []Trial
	Flag           *Flag
	Log            *monitor.ActivityLog
	SuccessMessage string
	FailureMessage string
}

// Model runs trials against targets.
type Model struct {
	roll func() float64
	mu   sync.Mutex
}

// Option configures a Model.
type Option func(*Model)

// WithSource replaces the uniform [0,1) random source.
func WithSource(roll func() float64) Option {
	return func(m *Model) {
		m.roll = roll
	}
}

// NewModel creates a model backed by math/rand/v2 unless overridden.
func NewModel(opts ...Option) *Model {
	m := &Model{roll: rand.Float64}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FirewallTrials returns the firewall trial set in execution order.
func FirewallTrials(cfg config.ExploitConfig) []Trial {
	return []Trial{
		{
			Method:        "default_credentials",
			Vulnerability: "default_credentials",
			Probability:   cfg.DefaultCredentials,
			Message:       "Attempting default admin credentials...",
		},
		{
			Method:        "weak_password",
			Vulnerability: "weak_admin_password",
			Probability:   cfg.WeakPassword,
			Message:       "Attempting password brute force...",
		},
		{
			Method:        "exposed_interface",
			Vulnerability: "exposed_management_interface",
			Probability:   cfg.ExposedInterface,
			Message:       "Exploiting exposed management interface...",
		},
	}
}

// ScadaTrials returns the single SCADA trial.
func ScadaTrials(cfg config.ExploitConfig) []Trial {
	return []Trial{
		{
			Method:      "default_credentials",
			Probability: cfg.Scada,
			Message:     "Attempting SCADA vendor default credentials...",
		},
	}
}

// Attempt runs every trial whose vulnerability is enabled (a trial with no
// vulnerability always runs). Any success compromises the target for good.
// Trials run even when the target is already compromised.
func (m *Model) Attempt(t Target, enabled func(vulnerability string) bool) types.ExploitResult {
	attempts := make([]types.ExploitAttempt, 0, len(t.Trials))
	success := false
	method := ""

	m.mu.Lock()
	for _, trial := range t.Trials {
		if trial.Vulnerability != "" && (enabled == nil || !enabled(trial.Vulnerability)) {
			continue
		}
		ok := m.roll() < trial.Probability
		attempts = append(attempts, types.ExploitAttempt{
			Method:  trial.Method,
			Success: ok,
			Message: trial.Message,
		})
		if ok && !success {
			success = true
			method = trial.Method
		}
	}
	m.mu.Unlock()

	monitor.ObserveExploit(t.Name, success)

	if !success {
		return types.ExploitResult{
			Success:     false,
			Message:     t.FailureMessage,
			Attempts:    attempts,
			Compromised: false,
		}
	}

	t.Flag.Set()
	if t.Log != nil {
		t.Log.Append("exploit_success", t.SuccessMessage)
	}
	return types.ExploitResult{
		Success:     true,
		Message:     t.SuccessMessage,
		Method:      method,
		Attempts:    attempts,
		Compromised: true,
	}
}
