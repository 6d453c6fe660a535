// Package docstore exposes the remote per-user document store that owns the
// authoritative device registry.
package docstore

import (
	"context"
	"errors"
)

// Document is the schemaless per-user document.
type Document map[string]any

// ErrDocumentNotFound indicates no document exists yet for the user.
var ErrDocumentNotFound = errors.New("document not found")

// Client addresses per-user documents by user id.
type Client interface {
	GetDocument(ctx context.Context, userID string) (Document, error)
	SetDocument(ctx context.Context, userID string, fields Document) error
	UpdateDocument(ctx context.Context, userID string, partial Document) error
}
