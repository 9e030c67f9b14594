package dbfs

import (
	"fmt"
	"log/slog"
	"sync"

	"bazil.org/fuse"

	"github.com/dendrascience/dbooru/util"
)

// Session holds the inode table, the file-handle table and the handle
// generator for one mount. Every mutation happens under mu; handler I/O
// runs outside it once the handler has been resolved.
type Session struct {
	mu sync.Mutex

	nodes  refTable[fuse.NodeID, Node]
	ids    map[string]fuse.NodeID
	nextID fuse.NodeID

	handles refTable[fuse.HandleID, Handle]
	gen     *util.HandleGenerator

	logger *slog.Logger
}

// NewSession returns a session with root resident as fuse.RootID.
func NewSession(root Node, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		nodes:   newRefTable[fuse.NodeID, Node](),
		ids:     make(map[string]fuse.NodeID),
		nextID:  fuse.RootID + 1,
		handles: newRefTable[fuse.HandleID, Handle](),
		gen:     util.NewHandleGenerator(),
		logger:  logger,
	}
	s.nodes.insert(fuse.RootID, root)
	s.ids[root.key()] = fuse.RootID
	return s
}

// Node resolves a resident inode.
func (s *Session) Node(id fuse.NodeID) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes.get(id)
	if !ok {
		return nil, fmt.Errorf("inode %d: %w", id, ErrStale)
	}
	return n, nil
}

// Register records one kernel lookup of n. If an inode with the same
// identity is already resident its count grows and the resident node is
// returned in place of n.
func (s *Session) Register(n Node) (fuse.NodeID, Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[n.key()]; ok {
		s.nodes.retain(id, 1)
		resident, _ := s.nodes.get(id)
		return id, resident
	}
	id := s.nextID
	s.nextID++
	s.nodes.insert(id, n)
	s.ids[n.key()] = id
	return id, n
}

// Forget drops n lookups from inode id. The root never leaves the table;
// its count stops at one.
func (s *Session) Forget(id fuse.NodeID, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == fuse.RootID {
		if refs := s.nodes.refs(id); n >= refs {
			n = refs - 1
		}
	}
	node, evicted, err := s.nodes.release(id, n)
	if evicted {
		delete(s.ids, node.key())
	}
	if err != nil {
		return fmt.Errorf("forget inode %d by %d: %w", id, n, err)
	}
	return nil
}

// InodeOf returns the id of the resident inode with the given identity.
func (s *Session) InodeOf(key string) (fuse.NodeID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[key]
	return id, ok
}

// Open registers h under a freshly generated handle id.
func (s *Session) Open(h Handle) fuse.HandleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fuse.HandleID(s.gen.Next())
	s.handles.insert(id, h)
	return id
}

// Handle resolves an open handle.
func (s *Session) Handle(id fuse.HandleID) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles.get(id)
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", id, ErrStale)
	}
	return h, nil
}

// Release drops one reference from handle id. When the last reference
// goes the entry is evicted and the id returned to the generator; the
// caller then tears the handler down.
func (s *Session) Release(id fuse.HandleID) (h Handle, last bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, last, err = s.handles.release(id, 1)
	if err != nil {
		return h, last, fmt.Errorf("release handle %d: %w", id, err)
	}
	if last {
		if err := s.gen.Forget(uint64(id)); err != nil {
			return h, last, fmt.Errorf("release handle %d: %w", id, err)
		}
	}
	return h, last, nil
}

// Refs reports the lookup count of inode id, zero when not resident.
func (s *Session) Refs(id fuse.NodeID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes.refs(id)
}

// Counts reports the number of resident inodes and open handles.
func (s *Session) Counts() (nodes, handles int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes.len(), s.handles.len()
}
