package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Micca1978/scadarange/pkg/types"
)

// ErrRuleNotFound is matched by every *NotFoundError.
var ErrRuleNotFound = errors.New("rule not found")

// NotFoundError reports an update against an unknown rule id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rule %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrRuleNotFound
}

// RuleStore holds firewall rules sorted by priority, highest first.
// Rules with equal priority keep their insertion order.
type RuleStore struct {
	rules []types.Rule
	now   func() time.Time
	mu    sync.RWMutex
}

// NewRuleStore creates a store seeded with rules.
func NewRuleStore(seed []types.Rule) *RuleStore {
	s := &RuleStore{
		rules: append(make([]types.Rule, 0, len(seed)), seed...),
		now:   time.Now,
	}
	s.sortLocked()
	return s
}

// Add inserts a rule built from spec and returns the stored copy.
// Duplicate ids are accepted.
func (s *RuleStore) Add(spec types.RuleSpec) types.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule := fromSpec(spec)
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if spec.Priority != nil {
		rule.Priority = *spec.Priority
	} else {
		rule.Priority = len(s.rules) * 10
	}
	rule.CreatedAt = s.now()

	s.rules = append(s.rules, rule)
	s.sortLocked()
	return rule
}

// Update replaces the first rule with id. The stored priority is kept and
// the priority in spec is ignored.
func (s *RuleStore) Update(id string, spec types.RuleSpec) (types.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, old := range s.rules {
		if old.ID != id {
			continue
		}
		rule := fromSpec(spec)
		rule.ID = id
		rule.Priority = old.Priority
		rule.CreatedAt = old.CreatedAt
		now := s.now()
		rule.UpdatedAt = &now

		s.rules[i] = rule
		s.sortLocked()
		return rule, nil
	}
	return types.Rule{}, &NotFoundError{ID: id}
}

// Remove deletes every rule with id. Unknown ids are ignored.
func (s *RuleStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rules[:0]
	for _, r := range s.rules {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	// clear the tail so removed rules are not retained by the backing array
	for i := len(kept); i < len(s.rules); i++ {
		s.rules[i] = types.Rule{}
	}
	s.rules = kept
}

// List returns a copy of the rules in evaluation order.
func (s *RuleStore) List() []types.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]types.Rule, len(s.rules))
	copy(result, s.rules)
	return result
}

// Len returns the number of stored rules.
func (s *RuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// view runs fn with the live rule slice under the read lock.
func (s *RuleStore) view(fn func(rules []types.Rule)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.rules)
}

func (s *RuleStore) sortLocked() {
	sort.SliceStable(s.rules, func(i, j int) bool {
		return s.rules[i].Priority > s.rules[j].Priority
	})
}

func fromSpec(spec types.RuleSpec) types.Rule {
	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}
	return types.Rule{
		ID:          spec.ID,
		Name:        spec.Name,
		Source:      spec.Source,
		Destination: spec.Destination,
		Service:     spec.Service,
		Action:      spec.Action,
		Enabled:     enabled,
		Description: spec.Description,
	}
}
