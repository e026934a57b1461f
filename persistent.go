package subbus

import (
	"reflect"
	"sync"
)

// record is a persistent event nobody handled yet.
type record struct {
	seq   uint64
	event any
	typ   reflect.Type
	rule  PersistenceRule
}

// persistentStore buffers unhandled persistent events, most recent first.
// It never grows by itself beyond what is posted: NeverClear records stay
// until Clear.
type persistentStore struct {
	mu      sync.Mutex
	records []*record
	nextSeq uint64
}

func newPersistentStore() *persistentStore {
	return &persistentStore{}
}

// push inserts an unhandled event at the head of the buffer.
func (s *persistentStore) push(event any, typ reflect.Type, rule PersistenceRule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	rec := &record{seq: s.nextSeq, event: event, typ: typ, rule: rule}
	s.records = append(s.records, nil)
	copy(s.records[1:], s.records)
	s.records[0] = rec
}

// matching returns a snapshot of the records of typ in buffer order.
func (s *persistentStore) matching(typ reflect.Type) []*record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*record
	for _, rec := range s.records {
		if rec.typ == typ {
			out = append(out, rec)
		}
	}
	return out
}

// remove drops rec from the buffer. It reports false if rec was already gone.
func (s *persistentStore) remove(rec *record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.records {
		if r == rec {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of buffered events.
func (s *persistentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// LenFor returns the number of buffered events of typ.
func (s *persistentStore) LenFor(typ reflect.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.records {
		if rec.typ == typ {
			n++
		}
	}
	return n
}

// Clear empties the buffer and returns how many events it held.
func (s *persistentStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	s.records = nil
	return n
}
