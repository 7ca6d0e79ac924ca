package notify

import (
	"container/list"
	"sync"

	"vigil-go/internal/domain"
)

// templateCache is a fixed-capacity LRU cache over notification templates,
// keyed by channel and alert type. Template lookups happen on every delivery,
// so they must not hit the repository each time.
type templateCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	key  string
	tmpl *domain.NotificationTemplate
}

func newTemplateCache(capacity int) *templateCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &templateCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func cacheKey(channel domain.NotificationChannel, alertType domain.AlertRuleType) string {
	return string(channel) + ":" + string(alertType)
}

// get returns the cached template and marks it most recently used.
func (c *templateCache) get(key string) (*domain.NotificationTemplate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).tmpl, true
}

// put inserts or refreshes a template, evicting the least recently used
// entry when over capacity.
func (c *templateCache) put(key string, tmpl *domain.NotificationTemplate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).tmpl = tmpl
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, tmpl: tmpl})
	c.items[key] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// remove drops one entry, used when a template is updated or deleted.
func (c *templateCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

// purge drops everything.
func (c *templateCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

func (c *templateCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
