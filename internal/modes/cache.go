package modes

import "sync"

// Cache memoizes parsed mode files by path for the life of the process.
// Edits to a mode file take effect after a restart. Failed parses are not
// cached.
type Cache struct {
	parser  Parser
	mu      sync.Mutex
	entries map[string]Parsed
}

// NewCache returns an empty cache using parser.
func NewCache(parser Parser) *Cache {
	return &Cache{parser: parser, entries: make(map[string]Parsed)}
}

// Get returns the parsed mode at path, parsing it on first use.
func (c *Cache) Get(path string) (Parsed, error) {
	c.mu.Lock()
	p, ok := c.entries[path]
	c.mu.Unlock()
	if ok {
		return p, nil
	}
	p, err := c.parser.ParseFile(path)
	if err != nil {
		return Parsed{}, err
	}
	c.mu.Lock()
	// A concurrent first use may have stored an entry already; keep it.
	if prev, ok := c.entries[path]; ok {
		p = prev
	} else {
		c.entries[path] = p
	}
	c.mu.Unlock()
	return p, nil
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
