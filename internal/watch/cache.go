package watch

import (
	"container/list"
	"strings"
	"sync"
)

// SkillCache is an LRU cache of a cwd's resolved skill tree, keyed by cwd,
// per spec §4.10 ("the skills manager maintains an LRU cache keyed by
// cwd"). A watcher event whose changed paths fall under the skills root
// invalidates every cached entry, since any cwd's resolved tree could have
// included the changed file.
type SkillCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	cwd    string
	skills []Skill
}

// NewSkillCache builds a cache holding up to capacity cwd entries.
func NewSkillCache(capacity int) *SkillCache {
	if capacity <= 0 {
		capacity = 32
	}
	return &SkillCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached skill list for cwd, promoting it to
// most-recently-used, and whether it was present.
func (c *SkillCache) Get(cwd string) ([]Skill, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[cwd]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).skills, true
}

// Put inserts or replaces the cached skill list for cwd, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *SkillCache) Put(cwd string, skills []Skill) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[cwd]; ok {
		el.Value.(*cacheEntry).skills = skills
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{cwd: cwd, skills: skills})
	c.entries[cwd] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).cwd)
		}
	}
}

// InvalidateAll drops every cached entry; called when a changed path falls
// under the shared skills root, since the change could affect any cwd's
// resolved tree.
func (c *SkillCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Intersects reports whether any of changedPaths falls under skillsRoot,
// the condition spec §4.10 gates cache invalidation on.
func Intersects(skillsRoot string, changedPaths []string) bool {
	for _, p := range changedPaths {
		if strings.HasPrefix(p, skillsRoot) {
			return true
		}
	}
	return false
}
