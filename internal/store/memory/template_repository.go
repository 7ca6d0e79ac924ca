package memory

import (
	"context"
	"sync"

	"vigil-go/internal/domain"
)

// TemplateRepository is an in-memory implementation of
// store.TemplateRepository. Templates are indexed by ID and by their
// (channel, alert type) pair.
type TemplateRepository struct {
	mu        sync.RWMutex
	templates map[string]*domain.NotificationTemplate
	byPair    map[string]*domain.NotificationTemplate
}

// NewTemplateRepository creates a new in-memory template repository.
func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{
		templates: make(map[string]*domain.NotificationTemplate),
		byPair:    make(map[string]*domain.NotificationTemplate),
	}
}

func pairKey(channel domain.NotificationChannel, alertType domain.AlertRuleType) string {
	return string(channel) + ":" + string(alertType)
}

// GetByChannelAndType retrieves the template for a channel and alert type.
func (r *TemplateRepository) GetByChannelAndType(ctx context.Context, channel domain.NotificationChannel, alertType domain.AlertRuleType) (*domain.NotificationTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl, exists := r.byPair[pairKey(channel, alertType)]
	if !exists {
		return nil, domain.ErrTemplateNotFound
	}

	result := *tmpl
	return &result, nil
}

// GetByID retrieves a template by its ID.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.NotificationTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl, exists := r.templates[id]
	if !exists {
		return nil, domain.ErrTemplateNotFound
	}

	result := *tmpl
	return &result, nil
}

// Save stores a new template.
func (r *TemplateRepository) Save(ctx context.Context, tmpl *domain.NotificationTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tmplCopy := *tmpl
	r.templates[tmpl.ID] = &tmplCopy
	r.byPair[pairKey(tmpl.Channel, tmpl.AlertType)] = &tmplCopy
	return nil
}

// Update modifies an existing template.
func (r *TemplateRepository) Update(ctx context.Context, tmpl *domain.NotificationTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.templates[tmpl.ID]
	if !exists {
		return domain.ErrTemplateNotFound
	}

	// Drop the old pair index entry if the pair changed.
	oldKey := pairKey(existing.Channel, existing.AlertType)
	newKey := pairKey(tmpl.Channel, tmpl.AlertType)
	if oldKey != newKey {
		delete(r.byPair, oldKey)
	}

	tmplCopy := *tmpl
	r.templates[tmpl.ID] = &tmplCopy
	r.byPair[newKey] = &tmplCopy
	return nil
}

// Delete removes a template by ID.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tmpl, exists := r.templates[id]
	if !exists {
		return domain.ErrTemplateNotFound
	}
	delete(r.templates, id)
	delete(r.byPair, pairKey(tmpl.Channel, tmpl.AlertType))
	return nil
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *TemplateRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = make(map[string]*domain.NotificationTemplate)
	r.byPair = make(map[string]*domain.NotificationTemplate)
}
