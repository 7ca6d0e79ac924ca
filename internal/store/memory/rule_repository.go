package memory

import (
	"context"
	"sort"
	"sync"

	"vigil-go/internal/domain"
)

// RuleRepository is an in-memory implementation of store.AlertRuleRepository.
type RuleRepository struct {
	mu    sync.RWMutex
	rules map[string]*domain.AlertRule
}

// NewRuleRepository creates a new in-memory rule repository.
func NewRuleRepository() *RuleRepository {
	return &RuleRepository{
		rules: make(map[string]*domain.AlertRule),
	}
}

// Save stores a new rule.
func (r *RuleRepository) Save(ctx context.Context, rule *domain.AlertRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ruleCopy := *rule
	r.rules[rule.ID] = &ruleCopy
	return nil
}

// Update modifies an existing rule.
func (r *RuleRepository) Update(ctx context.Context, rule *domain.AlertRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.ID]; !exists {
		return domain.ErrRuleNotFound
	}

	ruleCopy := *rule
	r.rules[rule.ID] = &ruleCopy
	return nil
}

// GetByID retrieves a rule by its ID.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*domain.AlertRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, exists := r.rules[id]
	if !exists {
		return nil, domain.ErrRuleNotFound
	}

	result := *rule
	return &result, nil
}

// List retrieves rules matching the filter criteria.
func (r *RuleRepository) List(ctx context.Context, filter domain.RuleFilter) ([]*domain.AlertRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.AlertRule
	for _, rule := range r.rules {
		if filter.Enabled != nil && rule.Enabled != *filter.Enabled {
			continue
		}
		if filter.Type != "" && rule.Type != filter.Type {
			continue
		}

		ruleCopy := *rule
		results = append(results, &ruleCopy)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})
	return results, nil
}

// Delete removes a rule by ID.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[id]; !exists {
		return domain.ErrRuleNotFound
	}
	delete(r.rules, id)
	return nil
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *RuleRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = make(map[string]*domain.AlertRule)
}
