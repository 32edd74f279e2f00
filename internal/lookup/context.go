package lookup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DefaultContextFile caches lookup results between runs so synthesis stays
// deterministic
const DefaultContextFile = "svcstack.context.json"

// Context is the on-disk cache of lookup results, keyed by query
type Context struct {
	path    string
	mu      sync.Mutex
	entries map[string]json.RawMessage
	dirty   bool
}

// LoadContext reads the context file. A missing file yields an empty context.
func LoadContext(path string) (*Context, error) {
	c := &Context{path: path, entries: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("failed to parse context file %s: %w", path, err)
	}
	return c, nil
}

// Get decodes a cached entry into v and reports whether it was present
func (c *Context) Get(key string, v interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("context entry %s: %w", key, err)
	}
	return true, nil
}

// Set stores an entry, replacing any previous value
func (c *Context) Set(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("context entry %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	c.dirty = true
	return nil
}

// Keys returns the cached keys, sorted
func (c *Context) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset drops one entry, or every entry when key is empty
func (c *Context) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key == "" {
		c.entries = map[string]json.RawMessage{}
	} else {
		delete(c.entries, key)
	}
	c.dirty = true
}

// Save writes the context file if anything changed
func (c *Context) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}

	dir := filepath.Dir(c.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(c.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write context to %s: %w", c.path, err)
	}

	c.dirty = false
	return nil
}
