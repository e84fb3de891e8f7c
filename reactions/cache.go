package reactions

import (
	"maps"
	"sync"
)

// Cache holds the acting user's reaction per comment id. It is kept apart from
// comment bodies so toggling never touches the thread structure.
type Cache struct {
	mu     sync.RWMutex
	values map[string]Reaction
}

func NewCache() *Cache {
	return &Cache{values: make(map[string]Reaction)}
}

func (c *Cache) Get(commentID string) Reaction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	reaction, ok := c.values[commentID]
	if !ok {
		return None
	}

	return reaction
}

// Set stores reaction for commentID. Setting None drops the entry.
func (c *Cache) Set(commentID string, reaction Reaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(commentID, reaction)
}

func (c *Cache) set(commentID string, reaction Reaction) {
	if reaction == None || !reaction.IsValid() {
		delete(c.values, commentID)

		return
	}

	c.values[commentID] = reaction
}

// Snapshot copies the current values of the given comment ids, None included.
func (c *Cache) Snapshot(commentIDs ...string) map[string]Reaction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]Reaction, len(commentIDs))

	for _, id := range commentIDs {
		reaction, ok := c.values[id]
		if !ok {
			reaction = None
		}

		snapshot[id] = reaction
	}

	return snapshot
}

// Restore writes back values taken by Snapshot.
func (c *Cache) Restore(snapshot map[string]Reaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, reaction := range snapshot {
		c.set(id, reaction)
	}
}

// Merge sets every value in values, leaving other entries untouched.
func (c *Cache) Merge(values map[string]Reaction) {
	c.Restore(values)
}

// All returns a copy of every non-None entry.
func (c *Cache) All() map[string]Reaction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.values)
}
