package store

import (
	"slices"
	"sync"
	"time"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

// Placement says where a new id enters the ordered view.
// Ids already in the view keep their position.
type Placement int

const (
	// Detached stores the entity without adding it to the ordered view.
	Detached Placement = iota
	// Prepend puts new ids at the front of the view.
	Prepend
	// Append puts new ids at the end of the view.
	Append
)

// Collection is a normalized set of entities: one map keyed by id, an
// ordered id view, and a current slot that points into the same map.
// Every write goes through the map, so list and detail views never diverge.
type Collection[T any] struct {
	name    string
	keyOf   func(*T) string
	version func(*T) time.Time
	onStale func(collection, id string)

	mu       sync.RWMutex
	items    map[string]T
	order    []string
	current  string
	pins     map[string][]string // secondary view -> ids it references
	indexes  []Index[T]
	postings map[string]map[string][]string // index name -> key -> ids
}

// Index defines a secondary index on a collection.
type Index[T any] struct {
	name            string
	keyGen          func(*T) []string
	lookupTransform func(string) string // Optional transformation for lookups
}

// NewCollection creates an empty collection. keyOf extracts the id; version
// orders competing writes (a zero version is never stale).
func NewCollection[T any](name string, keyOf func(*T) string, version func(*T) time.Time) *Collection[T] {
	return &Collection[T]{
		name:     name,
		keyOf:    keyOf,
		version:  version,
		items:    make(map[string]T),
		postings: make(map[string]map[string][]string),
	}
}

// WithIndex adds a secondary index to the collection.
func (c *Collection[T]) WithIndex(name string, keyGen func(*T) []string) *Collection[T] {
	return c.WithIndexTransform(name, keyGen, nil)
}

// WithIndexTransform adds a secondary index whose lookups pass through lookupTransform,
// enabling case-insensitive matches.
func (c *Collection[T]) WithIndexTransform(name string, keyGen func(*T) []string, lookupTransform func(string) string) *Collection[T] {
	c.indexes = append(c.indexes, Index[T]{
		name:            name,
		keyGen:          keyGen,
		lookupTransform: lookupTransform,
	})
	c.postings[name] = make(map[string][]string)
	return c
}

// OnStale registers the callback run for every rejected stale write.
func (c *Collection[T]) OnStale(fn func(collection, id string)) *Collection[T] {
	c.onStale = fn
	return c
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Put upserts entity. It keeps the held entity and reports Stale when the
// incoming version is strictly older; equal versions replace, so the
// second of two identical writes wins.
func (c *Collection[T]) Put(entity T, where Placement) (T, Outcome) {
	c.mu.Lock()
	stored, outcome := c.putLocked(entity, where)
	c.mu.Unlock()
	return stored, outcome
}

func (c *Collection[T]) putLocked(entity T, where Placement) (T, Outcome) {
	id := c.keyOf(&entity)
	outcome := Inserted
	if held, exists := c.items[id]; exists {
		if domain.Newer(c.version(&held), c.version(&entity)) {
			if c.onStale != nil {
				c.onStale(c.name, id)
			}
			return held, Stale
		}
		c.reindex(id, &held, &entity)
		outcome = Updated
	} else {
		c.index(id, &entity)
	}
	c.items[id] = entity

	if !slices.Contains(c.order, id) {
		switch where {
		case Prepend:
			c.order = slices.Insert(c.order, 0, id)
		case Append:
			c.order = append(c.order, id)
		case Detached:
		}
	}
	return entity, outcome
}

// Reset replaces the ordered view with entities in the given order.
// Entities dropped from the view are evicted unless they are current or pinned.
// Held entities newer than the incoming copy survive in their new position.
func (c *Collection[T]) Reset(entities []T) []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := make([]string, 0, len(entities))
	out := make([]T, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		stored, _ := c.putLocked(e, Detached)
		id := c.keyOf(&stored)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		view = append(view, id)
		out = append(out, stored)
	}

	for _, id := range c.order {
		if _, keep := seen[id]; keep || id == c.current || c.pinnedLocked(id) {
			continue
		}
		c.evictLocked(id)
	}
	c.order = view
	return out
}

// Pin records the ids a secondary view named owner references, replacing
// that view's previous pins. Pinned entities survive Reset.
func (c *Collection[T]) Pin(owner string, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		delete(c.pins, owner)
		return
	}
	if c.pins == nil {
		c.pins = make(map[string][]string)
	}
	c.pins[owner] = slices.Clone(ids)
}

func (c *Collection[T]) pinnedLocked(id string) bool {
	for _, ids := range c.pins {
		if slices.Contains(ids, id) {
			return true
		}
	}
	return false
}

// Extend appends entities to the ordered view. Ids already present are
// updated in place, so nothing is duplicated or dropped.
func (c *Collection[T]) Extend(entities []T) []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, 0, len(entities))
	for _, e := range entities {
		stored, _ := c.putLocked(e, Append)
		out = append(out, stored)
	}
	return out
}

// Patch applies fn to the held entity. fn returns false to leave it unchanged.
// Patches bypass the version check; they carry field-level facts
// (scores, acceptance) rather than whole snapshots.
func (c *Collection[T]) Patch(id string, fn func(*T) bool) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, ok := c.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	updated := held
	if !fn(&updated) {
		return held, false
	}
	c.reindex(id, &held, &updated)
	c.items[id] = updated
	return updated, true
}

// PatchWhere applies fn to every held entity matching pred and returns the changed ones.
func (c *Collection[T]) PatchWhere(pred func(*T) bool, fn func(*T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []T
	for id, held := range c.items {
		if !pred(&held) {
			continue
		}
		updated := held
		if !fn(&updated) {
			continue
		}
		c.reindex(id, &held, &updated)
		c.items[id] = updated
		changed = append(changed, updated)
	}
	return changed
}

// Remove deletes id from the map, the view, every index and the current slot.
func (c *Collection[T]) Remove(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, ok := c.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	c.evictLocked(id)
	c.order = slices.DeleteFunc(c.order, func(o string) bool { return o == id })
	if c.current == id {
		c.current = ""
	}
	return held, true
}

func (c *Collection[T]) evictLocked(id string) {
	if held, ok := c.items[id]; ok {
		c.unindex(id, &held)
		delete(c.items, id)
	}
}

// Get returns the entity with id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[id]
	return e, ok
}

// Contains reports whether id is held.
func (c *Collection[T]) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[id]
	return ok
}

// List returns the ordered view.
func (c *Collection[T]) List() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// IDs returns the ids of the ordered view.
func (c *Collection[T]) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// Len returns the length of the ordered view.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Filter returns the entities of the ordered view matching pred.
func (c *Collection[T]) Filter(pred func(*T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []T
	for _, id := range c.order {
		e := c.items[id]
		if pred(&e) {
			out = append(out, e)
		}
	}
	return out
}

// SetCurrent stores entity and points the current slot at it.
func (c *Collection[T]) SetCurrent(entity T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, _ := c.putLocked(entity, Detached)
	c.current = c.keyOf(&stored)
	return stored
}

// Current returns the entity in the current slot.
func (c *Collection[T]) Current() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == "" {
		var zero T
		return zero, false
	}
	e, ok := c.items[c.current]
	return e, ok
}

// ClearCurrent empties the current slot.
func (c *Collection[T]) ClearCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ""
}

// Lookup returns the entities indexed under value, in insertion order.
func (c *Collection[T]) Lookup(indexName, value string) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, idx := range c.indexes {
		if idx.name == indexName && idx.lookupTransform != nil {
			value = idx.lookupTransform(value)
			break
		}
	}
	ids := c.postings[indexName][value]
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.items[id])
	}
	return out
}

// Clear drops every entity and the current slot.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]T)
	c.order = nil
	c.current = ""
	c.pins = nil
	for name := range c.postings {
		c.postings[name] = make(map[string][]string)
	}
}

func (c *Collection[T]) index(id string, e *T) {
	for _, idx := range c.indexes {
		posting := c.postings[idx.name]
		for _, key := range idx.keyGen(e) {
			if !slices.Contains(posting[key], id) {
				posting[key] = append(posting[key], id)
			}
		}
	}
}

func (c *Collection[T]) unindex(id string, e *T) {
	for _, idx := range c.indexes {
		posting := c.postings[idx.name]
		for _, key := range idx.keyGen(e) {
			ids := slices.DeleteFunc(posting[key], func(o string) bool { return o == id })
			if len(ids) == 0 {
				delete(posting, key)
				continue
			}
			posting[key] = ids
		}
	}
}

// reindex moves id between postings without disturbing its position under unchanged keys.
func (c *Collection[T]) reindex(id string, old, updated *T) {
	for _, idx := range c.indexes {
		posting := c.postings[idx.name]
		oldKeys, newKeys := idx.keyGen(old), idx.keyGen(updated)
		for _, key := range oldKeys {
			if slices.Contains(newKeys, key) {
				continue
			}
			ids := slices.DeleteFunc(posting[key], func(o string) bool { return o == id })
			if len(ids) == 0 {
				delete(posting, key)
				continue
			}
			posting[key] = ids
		}
		for _, key := range newKeys {
			if !slices.Contains(posting[key], id) {
				posting[key] = append(posting[key], id)
			}
		}
	}
}
