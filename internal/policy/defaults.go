package policy

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Micca1978/scadarange/pkg/types"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// DefaultRules returns the range's starting rule set.
func DefaultRules() []types.Rule {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default rules: %v", err))
	}
	return rules
}

// LoadRules reads a YAML rule list from path.
func LoadRules(path string) ([]types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule list. Missing ids are an error; a missing
// enabled flag means enabled.
func ParseRules(data []byte) ([]types.Rule, error) {
	var specs []types.RuleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	rules := make([]types.Rule, 0, len(specs))
	for i, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if spec.Action != types.ActionAllow && spec.Action != types.ActionDeny {
			return nil, fmt.Errorf("rule %s: action must be allow or deny, got %q", spec.ID, spec.Action)
		}
		rule := fromSpec(spec)
		if spec.Priority != nil {
			rule.Priority = *spec.Priority
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
