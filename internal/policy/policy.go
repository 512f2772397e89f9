// Package policy provides firewall rule storage and connection evaluation for the SCADA range.
package policy

import (
	"fmt"
	"strings"

	"github.com/Micca1978/scadarange/internal/exploit"
	"github.com/Micca1978/scadarange/internal/monitor"
	"github.com/Micca1978/scadarange/pkg/types"
)

// Engine evaluates connection requests against a RuleStore.
type Engine struct {
	store         *RuleStore
	defaultPolicy types.RuleAction
	firewall      *exploit.Flag
	scada         *exploit.Flag
	log           *monitor.ActivityLog
}

// NewEngine creates an engine. firewall gates the attacker bypass on
// Evaluate; either flag opens the SCADA portal.
func NewEngine(store *RuleStore, defaultPolicy types.RuleAction, firewall, scada *exploit.Flag, log *monitor.ActivityLog) *Engine {
	if defaultPolicy != types.ActionAllow {
		defaultPolicy = types.ActionDeny
	}
	return &Engine{
		store:         store,
		defaultPolicy: defaultPolicy,
		firewall:      firewall,
		scada:         scada,
		log:           log,
	}
}

// DefaultPolicy returns the verdict applied when no rule matches.
func (e *Engine) DefaultPolicy() types.RuleAction {
	return e.defaultPolicy
}

// Evaluate decides whether source may reach destination on service.
func (e *Engine) Evaluate(source, destination, service, identity string) types.Decision {
	e.log.Append("connection_attempt",
		fmt.Sprintf("Connection attempt: %s -> %s:%s", source, destination, service))

	decision := e.decide(source, destination, service, identity)

	verdict := "blocked"
	if decision.Allowed {
		verdict = "allowed"
	}
	switch decision.Reason {
	case types.ReasonRuleMatch:
		e.log.Append("connection_result", fmt.Sprintf("Connection %s by rule %s", verdict, decision.RuleName))
	case types.ReasonFirewallCompromised:
		e.log.Append("connection_result", fmt.Sprintf("Connection %s: firewall compromised", verdict))
	default:
		e.log.Append("connection_result", fmt.Sprintf("Connection %s by default policy", verdict))
	}
	monitor.ObserveDecision(decision.Allowed, string(decision.Reason))

	return decision
}

func (e *Engine) decide(source, destination, service, identity string) types.Decision {
	if e.firewall.IsSet() && identity == types.AttackerIdentity {
		return types.Decision{Allowed: true, Reason: types.ReasonFirewallCompromised}
	}

	var decision *types.Decision
	e.store.view(func(rules []types.Rule) {
		for i := range rules {
			rule := &rules[i]
			if !rule.Enabled {
				continue
			}
			if matchRule(rule, source, destination, service) {
				decision = &types.Decision{
					Allowed:  rule.Action == types.ActionAllow,
					Reason:   types.ReasonRuleMatch,
					RuleID:   rule.ID,
					RuleName: rule.Name,
				}
				return
			}
		}
	})
	if decision != nil {
		return *decision
	}

	return types.Decision{
		Allowed: e.defaultPolicy == types.ActionAllow,
		Reason:  types.ReasonDefaultPolicy,
	}
}

// CheckPortalAccess decides whether the SCADA portal is exposed.
// Unlike Evaluate this scans every enabled rule: a portal-covering deny
// anywhere in the list wins over any portal-covering allow.
func (e *Engine) CheckPortalAccess() bool {
	if e.firewall.IsSet() || e.scada.IsSet() {
		return true
	}

	var blockedBy string
	blocked, allowed := false, false
	e.store.view(func(rules []types.Rule) {
		for i := range rules {
			rule := &rules[i]
			if !rule.Enabled || !coversPortal(rule) {
				continue
			}
			switch strings.ToLower(string(rule.Action)) {
			case string(types.ActionDeny):
				blocked = true
				blockedBy = rule.Name
				return
			case string(types.ActionAllow):
				allowed = true
			}
		}
	})

	if blocked {
		e.log.Append("scada_access_denied", fmt.Sprintf("SCADA portal access blocked by rule: %s", blockedBy))
		return false
	}
	if allowed {
		e.log.Append("scada_access", "SCADA portal access allowed")
		return true
	}
	e.log.Append("scada_access_denied", "SCADA portal access denied - default policy")
	return false
}
