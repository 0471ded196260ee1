package docstore

import (
	"context"
	"errors"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrStoreClosed      = errors.New("document store is closed")
)

// Document is one record in a collection. Fields hold only JSON-safe values:
// strings, bools, float64 numbers and []string sets.
type Document struct {
	ID     string
	Fields map[string]any
}

// Snapshot is a full push of a collection's current document set, ordered as
// requested at subscription time.
type Snapshot struct {
	Collection string
	Documents  []Document
}

// Subscription is a live feed of snapshots for one collection. The first
// snapshot reflects the current state; further snapshots follow every write
// to the collection. Snapshots conflate: a slow consumer always sees the
// latest state, intermediate states may be skipped.
type Subscription interface {
	Snapshots() <-chan Snapshot
	// Err returns the terminal error, if any, after Snapshots closes.
	Err() error
	// Close stops the feed and closes the snapshot channel. Idempotent.
	Close() error
}

// Store is the remote message database: ordered collection subscriptions,
// document appends and field-level partial updates.
type Store interface {
	Subscribe(ctx context.Context, collection, orderBy string, ascending bool) (Subscription, error)
	// Append adds a document with a store-assigned id and returns that id.
	// ServerTimestamp sentinels in fields resolve to the store clock.
	Append(ctx context.Context, collection string, fields map[string]any) (string, error)
	// UpdatePartial patches individual fields of one document without
	// touching siblings. Keys may be dotted paths ("profile.color");
	// ArrayUnion values merge additively into string-set fields.
	UpdatePartial(ctx context.Context, collection, docID string, fields map[string]any) error
}
