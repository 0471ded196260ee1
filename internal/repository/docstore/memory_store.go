package docstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a map-backed Store with the same semantics as GormStore.
// Tests and development setups use it in place of the durable store.
type MemoryStore struct {
	broker *subBroker

	mu          sync.Mutex
	collections map[string]map[string]map[string]any // collection -> docID -> fields
	lastTS      int64
	closed      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		broker:      newSubBroker(),
		collections: map[string]map[string]map[string]any{},
	}
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection, orderBy string, ascending bool) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(collection) == "" || strings.TrimSpace(orderBy) == "" {
		return nil, errors.New("collection and order field are required")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	s.mu.Unlock()

	sub := newCollectionSub(collection, orderBy, ascending, s.broker.remove)
	s.broker.add(sub)

	docs, _ := s.load(collection, orderBy, ascending)
	sub.deliver(Snapshot{Collection: collection, Documents: docs})
	return sub, nil
}

func (s *MemoryStore) Append(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(collection) == "" {
		return "", errors.New("collection is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrStoreClosed
	}
	now := s.nextTimestampLocked()
	docID := uuid.NewString()
	stored := make(map[string]any, len(fields))
	for k, v := range fields {
		stored[k] = resolveValue(deepCopyValue(v), now)
	}
	docs, ok := s.collections[collection]
	if !ok {
		docs = map[string]map[string]any{}
		s.collections[collection] = docs
	}
	docs[docID] = stored
	s.mu.Unlock()

	s.broker.notify(collection, s.load)
	return docID, nil
}

func (s *MemoryStore) UpdatePartial(ctx context.Context, collection, docID string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	doc, ok := s.collections[collection][docID]
	if !ok {
		s.mu.Unlock()
		return ErrDocumentNotFound
	}
	now := s.nextTimestampLocked()
	for path, value := range fields {
		if err := applyUpdate(doc, path, value, now); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	s.broker.notify(collection, s.load)
	return nil
}

// Close rejects further writes and subscriptions. Existing subscriptions
// stay open until their own Close.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// nextTimestampLocked returns a strictly increasing store clock reading in
// microseconds, matching the per-room monotonic timestamp guarantee.
func (s *MemoryStore) nextTimestampLocked() time.Time {
	now := time.Now().UTC()
	if micro := now.UnixMicro(); micro <= s.lastTS {
		now = time.UnixMicro(s.lastTS + 1).UTC()
	}
	s.lastTS = now.UnixMicro()
	return now
}

func (s *MemoryStore) load(collection, orderBy string, ascending bool) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.collections[collection]
	docs := make([]Document, 0, len(stored))
	for id, fields := range stored {
		docs = append(docs, Document{ID: id, Fields: deepCopyFields(fields)})
	}
	sortDocuments(docs, orderBy, ascending)
	return docs, nil
}

// sortDocuments orders a snapshot by the requested field. Documents missing
// the field sort after all ordered ones regardless of direction; ties break
// by document id for determinism.
func sortDocuments(docs []Document, orderBy string, ascending bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		a := fieldAt(docs[i].Fields, orderBy)
		b := fieldAt(docs[j].Fields, orderBy)
		if (a == nil) != (b == nil) {
			return b == nil
		}
		if a != nil {
			if c := compareFieldValues(a, b); c != 0 {
				if ascending {
					return c < 0
				}
				return c > 0
			}
		}
		return docs[i].ID < docs[j].ID
	})
}
