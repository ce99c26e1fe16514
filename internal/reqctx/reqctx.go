// Package reqctx carries per-request accounting: precomputed-store hit/miss
// counters by topic and the time spent inside each logical store. It replaces
// process-wide counters so that parallel requests never bleed into each other.
package reqctx

import (
	"log/slog"
	"sync"
	"time"
)

// Context is the per-request carrier. The zero value is not usable; call New.
// All methods are safe for concurrent use by the fan-out tasks of one request.
type Context struct {
	mu      sync.Mutex
	hits    map[string]int
	misses  map[string]int
	elapsed map[string]time.Duration
	logger  *slog.Logger
}

// New creates an empty request context.
func New() *Context {
	return &Context{
		hits:    make(map[string]int),
		misses:  make(map[string]int),
		elapsed: make(map[string]time.Duration),
		logger:  slog.Default().With("component", "pdb"),
	}
}

// AddHits increases the topic's precomputed hits.
func (c *Context) AddHits(topic string, n int) {
	if n < 0 {
		c.logger.Error("negative AddHits", "topic", topic, "n", n)
	}
	c.mu.Lock()
	c.hits[topic] += n
	c.mu.Unlock()
	c.logger.Debug("hits", "topic", topic, "n", n)
}

// AddMisses increases the topic's precomputed misses.
func (c *Context) AddMisses(topic string, n int) {
	if n < 0 {
		c.logger.Error("negative AddMisses", "topic", topic, "n", n)
	}
	c.mu.Lock()
	c.misses[topic] += n
	c.mu.Unlock()
	c.logger.Debug("misses", "topic", topic, "n", n)
}

// SetHits overwrites the topic's hit counter.
func (c *Context) SetHits(topic string, n int) {
	c.mu.Lock()
	c.hits[topic] = n
	c.mu.Unlock()
}

// SetMisses overwrites the topic's miss counter.
func (c *Context) SetMisses(topic string, n int) {
	c.mu.Lock()
	c.misses[topic] = n
	c.mu.Unlock()
}

// AddElapsed records time spent inside the named store.
func (c *Context) AddElapsed(store string, d time.Duration) {
	c.mu.Lock()
	c.elapsed[store] += d
	c.mu.Unlock()
}

// Hits returns a copy of the hit counters, for response headers.
func (c *Context) Hits() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.hits))
	for k, v := range c.hits {
		out[k] = v
	}
	return out
}

// Misses returns a copy of the miss counters.
func (c *Context) Misses() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.misses))
	for k, v := range c.misses {
		out[k] = v
	}
	return out
}

// Elapsed returns a copy of the per-store elapsed table.
func (c *Context) Elapsed() map[string]time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Duration, len(c.elapsed))
	for k, v := range c.elapsed {
		out[k] = v
	}
	return out
}
