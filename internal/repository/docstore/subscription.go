package docstore

import (
	"sync"
)

// collectionSub is the subscription handle shared by both store
// implementations. Delivery conflates through a one-slot channel: a slow
// consumer skips intermediate snapshots but always observes the latest.
type collectionSub struct {
	collection string
	orderBy    string
	ascending  bool

	ch         chan Snapshot
	unregister func(*collectionSub)

	mu     sync.Mutex
	closed bool
	err    error
}

func newCollectionSub(collection, orderBy string, ascending bool, unregister func(*collectionSub)) *collectionSub {
	return &collectionSub{
		collection: collection,
		orderBy:    orderBy,
		ascending:  ascending,
		ch:         make(chan Snapshot, 1),
		unregister: unregister,
	}
}

func (s *collectionSub) Snapshots() <-chan Snapshot { return s.ch }

func (s *collectionSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *collectionSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.unregister(s)
	close(s.ch)
	return nil
}

// deliver hands a snapshot to the consumer, replacing any undrained one.
func (s *collectionSub) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
}

func (s *collectionSub) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.mu.Unlock()

	s.unregister(s)
	close(s.ch)
}

// subBroker tracks live subscriptions per collection and fans writes out to
// them. Both store implementations embed one.
type subBroker struct {
	mu   sync.Mutex
	subs map[string][]*collectionSub
}

func newSubBroker() *subBroker {
	return &subBroker{subs: map[string][]*collectionSub{}}
}

// closeAll closes every live subscription. Used on store shutdown.
func (b *subBroker) closeAll() {
	b.mu.Lock()
	var all []*collectionSub
	for _, live := range b.subs {
		all = append(all, live...)
	}
	b.subs = map[string][]*collectionSub{}
	b.mu.Unlock()

	for _, sub := range all {
		_ = sub.Close()
	}
}

func (b *subBroker) add(sub *collectionSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub.collection] = append(b.subs[sub.collection], sub)
}

func (b *subBroker) remove(sub *collectionSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	live := b.subs[sub.collection]
	for i, s := range live {
		if s == sub {
			b.subs[sub.collection] = append(live[:i], live[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.collection]) == 0 {
		delete(b.subs, sub.collection)
	}
}

// snapshot builds one delivery for every live subscriber of a collection.
// load must return the collection contents ordered by the given field.
func (b *subBroker) notify(collection string, load func(collection, orderBy string, ascending bool) ([]Document, error)) {
	b.mu.Lock()
	live := append([]*collectionSub(nil), b.subs[collection]...)
	b.mu.Unlock()

	for _, sub := range live {
		docs, err := load(collection, sub.orderBy, sub.ascending)
		if err != nil {
			sub.fail(err)
			continue
		}
		sub.deliver(Snapshot{Collection: collection, Documents: docs})
	}
}
