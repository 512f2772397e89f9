// Package firewall assembles the simulated next-gen firewall: its rule base,
// admin session, IPS switch, vulnerability set and compromise state.
package firewall

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/Micca1978/scadarange/internal/auth"
	"github.com/Micca1978/scadarange/internal/config"
	"github.com/Micca1978/scadarange/internal/exploit"
	"github.com/Micca1978/scadarange/internal/monitor"
	"github.com/Micca1978/scadarange/internal/policy"
	"github.com/Micca1978/scadarange/pkg/types"
)

const (
	defaultLogLimit = 100
	statusLogLimit  = 50
)

// ErrUnknownVulnerability is returned when patching a vulnerability the firewall does not have.
var ErrUnknownVulnerability = errors.New("unknown vulnerability")

// Params wires a Firewall to its collaborators.
type Params struct {
	Config  *config.FirewallConfig
	Exploit config.ExploitConfig
	// Rules seeds the rule base. Nil means the built-in range rules.
	Rules []types.Rule
	// ScadaFlag is the SCADA compromise flag; it also opens the portal.
	ScadaFlag   *exploit.Flag
	Model       *exploit.Model
	Log         *monitor.ActivityLog
	AuthOptions []auth.Option
}

// Firewall is the process-wide firewall instance.
type Firewall struct {
	rules  *policy.RuleStore
	engine *policy.Engine
	gate   *auth.Gate
	flag   *exploit.Flag
	model  *exploit.Model
	trials []exploit.Trial
	log    *monitor.ActivityLog

	ips   bool
	vulns map[string]bool
	mu    sync.RWMutex
}

// New creates a firewall from p.
func New(p Params) (*Firewall, error) {
	gate, err := auth.NewGate(p.Config, p.Log, p.AuthOptions...)
	if err != nil {
		return nil, err
	}

	seed := p.Rules
	if seed == nil {
		seed = policy.DefaultRules()
	}
	scadaFlag := p.ScadaFlag
	if scadaFlag == nil {
		scadaFlag = &exploit.Flag{}
	}
	model := p.Model
	if model == nil {
		model = exploit.NewModel()
	}

	flag := &exploit.Flag{}
	rules := policy.NewRuleStore(seed)
	return &Firewall{
		rules:  rules,
		engine: policy.NewEngine(rules, types.RuleAction(p.Config.DefaultPolicy), flag, scadaFlag, p.Log),
		gate:   gate,
		flag:   flag,
		model:  model,
		trials: exploit.FirewallTrials(p.Exploit),
		log:    p.Log,
		ips:    true,
		vulns: map[string]bool{
			"weak_admin_password":          true,
			"default_credentials":          true,
			"unpatched_firmware":           true,
			"exposed_management_interface": true,
		},
	}, nil
}

// Flag returns the firewall compromise flag.
func (f *Firewall) Flag() *exploit.Flag {
	return f.flag
}

// EvaluateConnection decides a connection request.
func (f *Firewall) EvaluateConnection(source, destination, service, identity string) types.Decision {
	return f.engine.Evaluate(source, destination, service, identity)
}

// CheckPortalAccess reports whether the SCADA portal is reachable.
func (f *Firewall) CheckPortalAccess() bool {
	return f.engine.CheckPortalAccess()
}

// Login authenticates against the admin console.
func (f *Firewall) Login(username, password string) (*types.AuthResult, error) {
	return f.gate.Login(username, password)
}

// Logout closes the admin session.
func (f *Firewall) Logout() {
	f.gate.Logout()
}

// Authenticated reports whether the admin session is open.
func (f *Firewall) Authenticated() bool {
	return f.gate.Authenticated()
}

// ValidateToken checks a session token.
func (f *Firewall) ValidateToken(token string) error {
	return f.gate.ValidateToken(token)
}

// ListRules returns the rules in evaluation order.
func (f *Firewall) ListRules() []types.Rule {
	return f.rules.List()
}

// AddRule stores a new rule.
func (f *Firewall) AddRule(spec types.RuleSpec) types.Rule {
	rule := f.rules.Add(spec)
	f.log.Append("rule_added", fmt.Sprintf("Rule added: %s", rule.Name))
	return rule
}

// UpdateRule replaces a rule, keeping its priority.
func (f *Firewall) UpdateRule(id string, spec types.RuleSpec) (types.Rule, error) {
	rule, err := f.rules.Update(id, spec)
	if err != nil {
		return types.Rule{}, err
	}
	f.log.Append("rule_updated", fmt.Sprintf("Rule updated: %s", id))
	return rule, nil
}

// RemoveRule deletes every rule with id.
func (f *Firewall) RemoveRule(id string) {
	f.rules.Remove(id)
	f.log.Append("rule_removed", fmt.Sprintf("Rule removed: %s", id))
}

// ToggleIPS switches the intrusion prevention system.
func (f *Firewall) ToggleIPS(enabled bool) {
	f.mu.Lock()
	f.ips = enabled
	f.mu.Unlock()

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	f.log.Append("ips_toggled", fmt.Sprintf("IPS %s", state))
}

// IPSEnabled reports the IPS state.
func (f *Firewall) IPSEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ips
}

// SetVulnerability enables or patches one of the firewall's weaknesses.
func (f *Firewall) SetVulnerability(name string, enabled bool) error {
	f.mu.Lock()
	if _, ok := f.vulns[name]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownVulnerability, name)
	}
	f.vulns[name] = enabled
	f.mu.Unlock()

	if enabled {
		f.log.Append("vulnerability_enabled", fmt.Sprintf("Vulnerability enabled: %s", name))
	} else {
		f.log.Append("vulnerability_patched", fmt.Sprintf("Vulnerability patched: %s", name))
	}
	return nil
}

// Vulnerabilities returns a copy of the vulnerability set.
func (f *Firewall) Vulnerabilities() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.vulns)
}

func (f *Firewall) vulnerable(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.vulns[name]
}

// AttemptExploit runs the firewall trials for every unpatched vulnerability.
func (f *Firewall) AttemptExploit() types.ExploitResult {
	return f.model.Attempt(exploit.Target{
		Name:           "firewall",
		Trials:         f.trials,
		Flag:           f.flag,
		Log:            f.log,
		SuccessMessage: "Firewall successfully compromised!",
		FailureMessage: "Exploitation attempts failed",
	}, f.vulnerable)
}

// Logs returns up to limit of the newest log entries; limit <= 0 means 100.
func (f *Firewall) Logs(limit int) []types.LogEntry {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	return f.log.Recent(limit)
}

// Status returns a snapshot of the firewall.
func (f *Firewall) Status() types.FirewallStatus {
	return types.FirewallStatus{
		Compromised:      f.flag.IsSet(),
		Authenticated:    f.gate.Authenticated(),
		IPSEnabled:       f.IPSEnabled(),
		RuleCount:        f.rules.Len(),
		DefaultPolicy:    f.engine.DefaultPolicy(),
		Vulnerabilities:  f.Vulnerabilities(),
		LoginAttempts:    f.gate.Attempts(),
		MaxLoginAttempts: f.gate.MaxAttempts(),
		Locked:           f.gate.Locked(),
		RecentLogs:       f.log.Recent(statusLogLimit),
	}
}
