package server

import (
	lru "github.com/hashicorp/golang-lru"

	language "github.com/hanpama/livegraph/internal/language"
)

// documentCache keeps parsed documents keyed by query text. Documents are
// never mutated after parsing, so one may serve many requests at once.
type documentCache struct {
	docs *lru.Cache
}

func newDocumentCache(size int) (*documentCache, error) {
	if size <= 0 {
		return &documentCache{}, nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &documentCache{docs: c}, nil
}

// parse returns the cached document for query or parses it. Syntax errors
// are not cached.
func (c *documentCache) parse(query string) (*language.QueryDocument, error) {
	if c.docs != nil {
		if v, ok := c.docs.Get(query); ok {
			return v.(*language.QueryDocument), nil
		}
	}
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	if c.docs != nil {
		c.docs.Add(query, doc)
	}
	return doc, nil
}

func (c *documentCache) len() int {
	if c.docs == nil {
		return 0
	}
	return c.docs.Len()
}
