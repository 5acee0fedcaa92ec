// Package nodetable holds the in-memory table of active inodes backing
// the write-only mount, and the per-node locking discipline that keeps
// slow object-store RPCs from blocking unrelated inodes.
package nodetable

import (
	"errors"
	"sync"
	"time"

	"github.com/takkt-ag/s3wofs-go/internal/upload"
)

// ErrNotFound is returned when an inode is not present in the table.
var ErrNotFound = errors.New("nodetable: inode not found")

// Attr is the POSIX-style attribute snapshot a Node presents to the
// dispatcher; it is a plain struct here so this package does not need to
// depend on the FUSE binding.
type Attr struct {
	Ino   uint64
	Size  uint64
	Mode  uint32 // e.g. 0o220
	Nlink uint32
	UID   uint32
	GID   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// Node represents one in-flight uploaded file (spec §3). Its Upload is
// guarded by a lock private to the Node so write/release never have to
// hold the table-wide lock across an RPC (spec §9, "table-lock
// discipline").
type Node struct {
	Key  string
	Attr Attr

	mu           sync.Mutex
	upload       upload.Upload
	bytesWritten uint64
}

func newNode(ino uint64, bucket, key string, now time.Time) *Node {
	return &Node{
		Key: key,
		Attr: Attr{
			Ino:   ino,
			Size:  0,
			Mode:  0o220,
			Nlink: 1,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
		upload: upload.New(bucket, key),
	}
}

// TakeUpload removes the Node's Upload value and returns it, leaving the
// Empty placeholder behind, along with the number of bytes previously
// written — used by write to validate append-only offsets. The
// caller must call PutUpload (or leave the node for removal) once it is
// done; no RPC may be issued while holding the Node's lock.
func (n *Node) TakeUpload() (upload.Upload, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := n.upload
	n.upload = upload.Upload{}
	return u, n.bytesWritten
}

// PutUpload restores u as the Node's current Upload and records that n
// additional bytes have now been accepted, so a later write can validate
// the offset it is asked to write at.
func (n *Node) PutUpload(u upload.Upload, additionalBytes uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.upload = u
	n.bytesWritten += additionalBytes
}

// Table is the node table: a map of active inodes to Nodes, guarded by a
// lock that is only ever held across fast map operations, never across
// an RPC (spec §5, §9).
type Table struct {
	bucket string

	mu    sync.RWMutex
	nodes map[uint64]*Node
}

// New creates an empty Table whose nodes upload into bucket.
func New(bucket string) *Table {
	return &Table{bucket: bucket, nodes: make(map[uint64]*Node)}
}

// Create allocates a new Node for ino/key and inserts it into the table.
// now is the creation timestamp for the Node's attributes.
func (t *Table) Create(ino uint64, key string, now time.Time) *Node {
	n := newNode(ino, t.bucket, key, now)
	t.mu.Lock()
	t.nodes[ino] = n
	t.mu.Unlock()
	return n
}

// Get returns the Node for ino, or ErrNotFound.
func (t *Table) Get(ino uint64) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[ino]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

// Remove deletes ino from the table and returns its Node, or
// ErrNotFound if it was not present. The caller still owns the returned
// Node exclusively — no other operation can observe it via the table
// again — but must still go through TakeUpload/PutUpload to extract its
// Upload, preserving invariant 6 of spec §3 (no operation issued against
// an Upload after Finish/Destroy returns).
func (t *Table) Remove(ino uint64) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[ino]
	if !ok {
		return nil, ErrNotFound
	}
	delete(t.nodes, ino)
	return n, nil
}

// Range calls fn for every live node in the table. fn must not call back
// into the Table (Create/Get/Remove/Range) — Range holds the read lock
// for its duration. It exists for unmount teardown, which must visit
// every still-open node to abort its upload.
func (t *Table) Range(fn func(ino uint64, n *Node)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for ino, n := range t.nodes {
		fn(ino, n)
	}
}

// Len reports the number of live nodes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
