package strategy

import (
	"sync"

	"perpilot/internal/strategy/dsl"
)

type cacheEntry struct {
	source  string
	program *dsl.Program
}

// ProgramCache compiles each strategy's program text once per (strategy, model) pair and reuses
// the compiled form on subsequent cycles (spec §4.6). A cached entry is recompiled only if the
// underlying program text changes, so edits to a Strategy row still take effect.
type ProgramCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewProgramCache() *ProgramCache {
	return &ProgramCache{entries: make(map[string]cacheEntry)}
}

func (c *ProgramCache) key(strategyID, modelID string) string {
	return strategyID + "|" + modelID
}

// Get returns the compiled program for (strategyID, modelID), compiling and caching it if this
// is the first call or the source text changed.
func (c *ProgramCache) Get(strategyID, modelID, source string, kind dsl.Kind) (*dsl.Program, error) {
	k := c.key(strategyID, modelID)

	c.mu.Lock()
	if e, ok := c.entries[k]; ok && e.source == source {
		c.mu.Unlock()
		return e.program, nil
	}
	c.mu.Unlock()

	prog, err := dsl.Compile(source, kind)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[k] = cacheEntry{source: source, program: prog}
	c.mu.Unlock()
	return prog, nil
}

// Invalidate drops a cached program, forcing recompilation on next use.
func (c *ProgramCache) Invalidate(strategyID, modelID string) {
	c.mu.Lock()
	delete(c.entries, c.key(strategyID, modelID))
	c.mu.Unlock()
}
