// Package types defines the core data types shared by the range subsystems and their clients.
package types

import (
	"time"
)

// RuleAction is the verdict a firewall rule applies to matching traffic.
type RuleAction string

const (
	ActionAllow RuleAction = "allow"
	ActionDeny  RuleAction = "deny"
)

// DecisionReason explains how a connection decision was reached.
type DecisionReason string

const (
	ReasonFirewallCompromised DecisionReason = "firewall_compromised"
	ReasonRuleMatch           DecisionReason = "rule_match"
	ReasonDefaultPolicy       DecisionReason = "default_policy"
)

// AttackerIdentity is the principal that gains a bypass once the firewall is compromised.
const AttackerIdentity = "student"

// Rule represents a firewall access-control rule.
type Rule struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Source      string     `json:"source" yaml:"source"`
	Destination string     `json:"destination" yaml:"destination"`
	Service     string     `json:"service" yaml:"service"`
	Action      RuleAction `json:"action" yaml:"action"`
	Enabled     bool       `json:"enabled" yaml:"enabled"`
	Priority    int        `json:"priority" yaml:"priority"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// RuleSpec is the caller-supplied shape of a rule on add or update.
// Nil Enabled means enabled; nil Priority lets the store assign one.
type RuleSpec struct {
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string     `json:"name" yaml:"name" validate:"required,max=128"`
	Source      string     `json:"source" yaml:"source" validate:"required,max=128"`
	Destination string     `json:"destination" yaml:"destination" validate:"required,max=128"`
	Service     string     `json:"service" yaml:"service" validate:"required,max=64"`
	Action      RuleAction `json:"action" yaml:"action" validate:"required,oneof=allow deny"`
	Enabled     *bool      `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Priority    *int       `json:"priority,omitempty" yaml:"priority,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty" validate:"max=512"`
}

// Decision is the outcome of evaluating a connection request.
type Decision struct {
	Allowed    bool           `json:"allowed"`
	Reason     DecisionReason `json:"reason"`
	RuleID     string         `json:"rule_id,omitempty"`
	RuleName   string         `json:"rule_name,omitempty"`
	NATApplied bool           `json:"nat_applied"`
}

// LogEntry is a single activity record kept by a subsystem.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
}

// AuthResult represents the result of a login attempt.
type AuthResult struct {
	Success           bool       `json:"success"`
	Message           string     `json:"message"`
	Authenticated     bool       `json:"authenticated,omitempty"`
	Locked            bool       `json:"locked"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"`
	Token             string     `json:"token,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// ExploitAttempt records one probabilistic trial.
type ExploitAttempt struct {
	Method  string `json:"method"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ExploitResult is the aggregate outcome of an exploitation run.
type ExploitResult struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message"`
	Method      string           `json:"method,omitempty"`
	Attempts    []ExploitAttempt `json:"attempts,omitempty"`
	Compromised bool             `json:"compromised"`
}

// FirewallStatus is a point-in-time snapshot of the firewall subsystem.
type FirewallStatus struct {
	Compromised      bool            `json:"compromised"`
	Authenticated    bool            `json:"authenticated"`
	IPSEnabled       bool            `json:"ips_enabled"`
	RuleCount        int             `json:"rule_count"`
	DefaultPolicy    RuleAction      `json:"default_policy"`
	Vulnerabilities  map[string]bool `json:"vulnerabilities"`
	LoginAttempts    int             `json:"login_attempts"`
	MaxLoginAttempts int             `json:"max_login_attempts"`
	Locked           bool            `json:"locked"`
	RecentLogs       []LogEntry      `json:"recent_logs"`
}
