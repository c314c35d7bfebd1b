package tool

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog is the process-wide set of registered integrations, keyed by tool
// name. Tools register once at startup; lookups happen on every dispatch.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]Tool)}
}

// Register adds a tool. Tool names are unique across the catalog.
func (c *Catalog) Register(t Tool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tools[t.Name()]; exists {
		return fmt.Errorf("catalog: tool %q already registered", t.Name())
	}
	c.tools[t.Name()] = t
	return nil
}

// MustRegister is Register for static wiring in main.
func (c *Catalog) MustRegister(t Tool) {
	if err := c.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the tool registered under name.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// List returns all registered tools in name order.
func (c *Catalog) List() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
