package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// documentRecord is the GORM model backing one document. Fields are stored
// as a JSON blob; ordering happens in Go over decoded fields so dotted and
// nested order keys behave identically to the in-memory store.
type documentRecord struct {
	ID         uint   `gorm:"primarykey"`
	Collection string `gorm:"uniqueIndex:idx_collection_doc,priority:1;index;not null"`
	DocID      string `gorm:"uniqueIndex:idx_collection_doc,priority:2;not null"`
	Fields     string `gorm:"not null"`
	UpdatedAt  time.Time
}

// AutoMigrate creates the documents table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&documentRecord{})
}

// GormStore is the durable Store implementation over GORM/SQLite. Snapshot
// fan-out is in-process: every write re-reads the affected collection and
// pushes the fresh snapshot to each live subscriber.
type GormStore struct {
	db     *gorm.DB
	broker *subBroker

	mu     sync.Mutex
	lastTS int64
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, broker: newSubBroker()}
}

func (s *GormStore) Subscribe(ctx context.Context, collection, orderBy string, ascending bool) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(collection) == "" || strings.TrimSpace(orderBy) == "" {
		return nil, errors.New("collection and order field are required")
	}

	sub := newCollectionSub(collection, orderBy, ascending, s.broker.remove)

	docs, err := s.load(collection, orderBy, ascending)
	if err != nil {
		log.Printf("[DocStore] Initial snapshot failed for collection %s: %v", collection, err)
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}
	s.broker.add(sub)
	sub.deliver(Snapshot{Collection: collection, Documents: docs})
	return sub, nil
}

func (s *GormStore) Append(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if strings.TrimSpace(collection) == "" {
		return "", errors.New("collection is required")
	}

	now := s.nextTimestamp()
	docID := uuid.NewString()
	stored := make(map[string]any, len(fields))
	for k, v := range fields {
		stored[k] = resolveValue(deepCopyValue(v), now)
	}
	encoded, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	rec := documentRecord{Collection: collection, DocID: docID, Fields: string(encoded)}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		log.Printf("[DocStore] Database error appending to collection %s: %v", collection, err)
		return "", errors.New("database error appending document")
	}

	s.broker.notify(collection, s.load)
	return docID, nil
}

func (s *GormStore) UpdatePartial(ctx context.Context, collection, docID string, fields map[string]any) error {
	if collection == "" || docID == "" {
		return errors.New("collection and document id are required")
	}

	now := s.nextTimestamp()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec documentRecord
		err := tx.Where("collection = ? AND doc_id = ?", collection, docID).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		if err != nil {
			return err
		}

		decoded := map[string]any{}
		if err := json.Unmarshal([]byte(rec.Fields), &decoded); err != nil {
			return fmt.Errorf("decode document %s/%s: %w", collection, docID, err)
		}
		for path, value := range fields {
			if err := applyUpdate(decoded, path, value, now); err != nil {
				return err
			}
		}
		encoded, err := json.Marshal(decoded)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		return tx.Model(&rec).Update("fields", string(encoded)).Error
	})
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return ErrDocumentNotFound
		}
		log.Printf("[DocStore] Database error updating %s/%s: %v", collection, docID, err)
		return errors.New("database error updating document")
	}

	s.broker.notify(collection, s.load)
	return nil
}

// Close closes every live subscription. The *gorm.DB connection itself is
// owned by the caller.
func (s *GormStore) Close() error {
	s.broker.closeAll()
	return nil
}

// nextTimestamp returns a strictly increasing store clock reading, shared
// across collections so one server instance never hands out equal stamps.
func (s *GormStore) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if micro := now.UnixMicro(); micro <= s.lastTS {
		now = time.UnixMicro(s.lastTS + 1).UTC()
	}
	s.lastTS = now.UnixMicro()
	return now
}

func (s *GormStore) load(collection, orderBy string, ascending bool) ([]Document, error) {
	var recs []documentRecord
	if err := s.db.Where("collection = ?", collection).Find(&recs).Error; err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(recs))
	for _, rec := range recs {
		fields := map[string]any{}
		if err := json.Unmarshal([]byte(rec.Fields), &fields); err != nil {
			log.Printf("[DocStore] Skipping undecodable document %s/%s: %v", collection, rec.DocID, err)
			continue
		}
		docs = append(docs, Document{ID: rec.DocID, Fields: fields})
	}
	sortDocuments(docs, orderBy, ascending)
	return docs, nil
}
