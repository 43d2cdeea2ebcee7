package engine

// Context is the shared mutable key/value store threaded through every step
// of one pipeline run. It is exclusively owned by one Driver for the duration
// of a run: the single-cursor execution model guarantees exactly one
// reader/writer at a time, so no locking is needed. Once a step writes a key,
// the value stays visible to every later step of the same run, even if a
// later step fails (no rollback).
type Context struct {
	values map[string]any
}

// NewContext creates an empty shared context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Get returns the value for key and whether it is present.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value under key, overwriting any previous value.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// Merge copies all entries of params into the context. Existing keys are
// overwritten, others preserved.
func (c *Context) Merge(params map[string]any) {
	for k, v := range params {
		c.values[k] = v
	}
}

// Clear removes every entry.
func (c *Context) Clear() {
	c.values = make(map[string]any)
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	return len(c.values)
}

// Snapshot returns a shallow copy of the stored values, for exposing the
// shared state to expression predicates without aliasing the live map.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// GetString returns the value for key as a string, or "" when absent or of
// another type.
func (c *Context) GetString(key string) string {
	v, _ := c.values[key].(string)
	return v
}

// GetStringSlice returns the value for key as a []string. Both []string and
// []any of strings are accepted (the latter appears after JSON decoding).
func (c *Context) GetStringSlice(key string) []string {
	switch v := c.values[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// GetInt64 returns the value for key as an int64, accepting the integer and
// float types JSON decoding produces. Returns 0 when absent or mismatched.
func (c *Context) GetInt64(key string) int64 {
	switch v := c.values[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
