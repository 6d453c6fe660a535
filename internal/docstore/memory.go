package docstore

import (
	"context"
	"sync"
)

var _ Client = (*MemoryClient)(nil)

// MemoryClient is an in-process document store used by tests and by the
// agent's standalone mode.
type MemoryClient struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryClient creates an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{docs: make(map[string]Document)}
}

func (c *MemoryClient) GetDocument(_ context.Context, userID string) (Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[userID]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	copied := make(Document, len(doc))
	for k, v := range doc {
		copied[k] = v
	}
	return copied, nil
}

func (c *MemoryClient) SetDocument(_ context.Context, userID string, fields Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make(Document, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	c.docs[userID] = copied
	return nil
}

func (c *MemoryClient) UpdateDocument(_ context.Context, userID string, partial Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[userID]
	if !ok {
		doc = make(Document)
		c.docs[userID] = doc
	}
	for k, v := range partial {
		doc[k] = v
	}
	return nil
}
