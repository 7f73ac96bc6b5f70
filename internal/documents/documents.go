// Package documents keeps the token's named legal documents: a URI and a
// content hash per name, enumerable in insertion order.
package documents

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/fault"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

var (
	ErrInvalidName = fault.New(fault.InvalidArgument, "INVALID_DOC_NAME")
	ErrInvalidURI  = fault.New(fault.InvalidArgument, "INVALID_URL")
	ErrNotExist    = fault.New(fault.InvalidArgument, "DOC_NOT_EXIST")
)

type Document struct {
	Name         common.Hash `json:"name"`
	URI          string      `json:"uri"`
	ContentHash  common.Hash `json:"documentHash"`
	LastModified uint64      `json:"lastModified"`
}

type Updated struct {
	Name        common.Hash `json:"name"`
	URI         string      `json:"uri"`
	ContentHash common.Hash `json:"documentHash"`
}

func (Updated) EventName() string { return "DocumentUpdated" }

type Removed struct {
	Name        common.Hash `json:"name"`
	URI         string      `json:"uri"`
	ContentHash common.Hash `json:"documentHash"`
}

func (Removed) EventName() string { return "DocumentRemoved" }

type Store struct {
	mu    sync.RWMutex
	roles *roles.Table
	sink  events.Sink
	clock func() time.Time

	docs  map[common.Hash]Document
	names []common.Hash
}

func NewStore(table *roles.Table, sink events.Sink, clock func() time.Time) *Store {
	if sink == nil {
		sink = events.Nop
	}
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		roles: table,
		sink:  sink,
		clock: clock,
		docs:  make(map[common.Hash]Document),
	}
}

// SetDocument creates or replaces a document. An existing name keeps its
// position; a new one is appended.
func (s *Store) SetDocument(caller common.Address, name common.Hash, uri string, hash common.Hash) error {
	if err := s.roles.Require(roles.Owner, caller); err != nil {
		return err
	}
	if name == (common.Hash{}) {
		return ErrInvalidName
	}
	if uri == "" {
		return ErrInvalidURI
	}

	s.mu.Lock()
	if _, ok := s.docs[name]; !ok {
		s.names = append(s.names, name)
	}
	s.docs[name] = Document{
		Name:         name,
		URI:          uri,
		ContentHash:  hash,
		LastModified: uint64(s.clock().Unix()),
	}
	s.mu.Unlock()

	s.sink.Publish(Updated{Name: name, URI: uri, ContentHash: hash})
	return nil
}

func (s *Store) RemoveDocument(caller common.Address, name common.Hash) error {
	if err := s.roles.Require(roles.Owner, caller); err != nil {
		return err
	}

	s.mu.Lock()
	doc, ok := s.docs[name]
	if !ok {
		s.mu.Unlock()
		return ErrNotExist
	}
	delete(s.docs, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i:i], s.names[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.sink.Publish(Removed{Name: name, URI: doc.URI, ContentHash: doc.ContentHash})
	return nil
}

// GetDocument returns the document stored under name. A missing name yields
// the zero Document and false.
func (s *Store) GetDocument(name common.Hash) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[name]
	return doc, ok
}

func (s *Store) GetAllDocuments() []common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Hash, len(s.names))
	copy(out, s.names)
	return out
}

// Snapshot returns the documents in insertion order.
func (s *Store) Snapshot() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.docs[n])
	}
	return out
}

func (s *Store) Restore(docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[common.Hash]Document, len(docs))
	s.names = s.names[:0]
	for _, d := range docs {
		if _, dup := s.docs[d.Name]; !dup {
			s.names = append(s.names, d.Name)
		}
		s.docs[d.Name] = d
	}
}

// Name right-pads a short label into a bytes32 document name.
func Name(label string) common.Hash {
	var h common.Hash
	copy(h[:], label)
	return h
}
