// Package fsys implements the FUSE-facing dispatcher: it satisfies
// github.com/hanwen/go-fuse/v2/fuse.RawFileSystem, enforces the
// write-only policy (spec §4.3), and routes every operation into the
// node table and upload state machine.
//
// This is the Go counterpart of the original's
// `impl Filesystem for S3WriteOnlyFilesystem`, translated onto go-fuse's
// raw interface the same way the original was written against the Rust
// `fuse` crate's `Filesystem` trait: most operations are unimplemented
// (and so fall through to go-fuse's default ENOSYS-returning stubs via
// embedding), and the handful spec.md names are overridden below.
package fsys

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/takkt-ag/s3wofs-go/internal/idalloc"
	"github.com/takkt-ag/s3wofs-go/internal/mounttarget"
	"github.com/takkt-ag/s3wofs-go/internal/nodetable"
	"github.com/takkt-ag/s3wofs-go/internal/s3client"
	"github.com/takkt-ag/s3wofs-go/internal/staticfiles"
)

// RootIno is the reserved inode of the mount root directory (spec §3).
const RootIno = 1

const (
	rootTTL = 60 * time.Second
	nodeTTL = 0
)

// Filesystem is the dispatcher described in spec §4.3. It owns the
// single shared node table, ID allocator, and object-store client for
// the mount.
type Filesystem struct {
	fuse.RawFileSystem

	client s3client.Client
	target mounttarget.MountTarget
	log    *logrus.Logger

	ids   *idalloc.Allocator
	table *nodetable.Table

	mountedAt time.Time
}

// New creates the dispatcher for a single mount of target, backed by
// client. User-created inodes are allocated starting at 10 (spec §3).
func New(client s3client.Client, target mounttarget.MountTarget, log *logrus.Logger) *Filesystem {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Filesystem{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		client:        client,
		target:        target,
		log:           log,
		ids:           idalloc.New(10),
		table:         nodetable.New(target.Bucket),
		mountedAt:     time.Now(),
	}
}

// Shutdown aborts every still-open upload. It is the "unmount / drop"
// path of spec §4.3: best-effort, errors are logged and never
// propagated, because an abandoned multipart upload left on the object
// store accrues real monetary cost and cleanup must never itself fail.
// The live nodes are collected first so that no abort RPC is issued while
// the table lock is held.
func (fs *Filesystem) Shutdown(ctx context.Context) {
	live := make(map[uint64]*nodetable.Node)
	fs.table.Range(func(ino uint64, n *nodetable.Node) {
		live[ino] = n
	})
	for ino, n := range live {
		u, _ := n.TakeUpload()
		if err := u.Destroy(ctx, fs.client); err != nil {
			fs.log.WithField("ino", ino).WithError(err).Error("failed to abort upload during unmount")
		}
	}
}

func (fs *Filesystem) rootAttr() fuse.Attr {
	var a fuse.Attr
	a.Ino = RootIno
	a.Mode = syscall.S_IFDIR | 0o755
	a.Nlink = 2
	setAttrTimes(&a, fs.mountedAt)
	return a
}

func staticAttr(f staticfiles.File) fuse.Attr {
	var a fuse.Attr
	a.Ino = f.Ino
	a.Size = uint64(len(f.Content))
	a.Mode = syscall.S_IFREG | 0o444
	a.Nlink = 1
	return a
}

func nodeAttr(n *nodetable.Node) fuse.Attr {
	var a fuse.Attr
	a.Ino = n.Attr.Ino
	a.Size = n.Attr.Size
	a.Mode = syscall.S_IFREG | n.Attr.Mode
	a.Nlink = 1
	setAttrTimes(&a, n.Attr.Ctime)
	return a
}

func setAttrTimes(a *fuse.Attr, t time.Time) {
	sec := uint64(t.Unix())
	nsec := uint32(t.Nanosecond())
	a.Atime, a.Atimensec = sec, nsec
	a.Mtime, a.Mtimensec = sec, nsec
	a.Ctime, a.Ctimensec = sec, nsec
}

// Lookup implements the root-only name resolution of spec §4.3: the
// only children the root directory has are the two static help files.
// User-created files are deliberately not discoverable by name — the
// write-only invariant (spec §8 "Write-only").
func (fs *Filesystem) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	fs.log.WithFields(logrus.Fields{"parent": header.NodeId, "name": name}).Debug("lookup")

	if header.NodeId != RootIno {
		return fuse.Status(syscall.ENOENT)
	}
	f, ok := staticfiles.ByName(name)
	if !ok {
		return fuse.Status(syscall.ENOENT)
	}
	out.NodeId = f.Ino
	out.Attr = staticAttr(f)
	out.SetEntryTimeout(rootTTL)
	out.SetAttrTimeout(rootTTL)
	return fuse.OK
}

// GetAttr implements spec §4.3's getattr contract.
func (fs *Filesystem) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	ino := input.NodeId
	switch ino {
	case RootIno:
		out.Attr = fs.rootAttr()
		out.SetTimeout(rootTTL)
		return fuse.OK
	case staticfiles.EnglishIno, staticfiles.GermanIno:
		f, _ := staticfiles.ByIno(ino)
		out.Attr = staticAttr(f)
		out.SetTimeout(rootTTL)
		return fuse.OK
	default:
		fs.log.WithField("ino", ino).Debug("getattr")
		n, err := fs.table.Get(ino)
		if err != nil {
			return fuse.Status(syscall.ENOENT)
		}
		out.Attr = nodeAttr(n)
		out.SetTimeout(nodeTTL)
		return fuse.OK
	}
}

// SetAttr never honors a mutation (spec §4.3, §9): it returns the
// node's current attributes unchanged, or ENOENT if the inode is
// unknown.
func (fs *Filesystem) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	n, err := fs.table.Get(input.NodeId)
	if err != nil {
		return fuse.Status(syscall.ENOENT)
	}
	out.Attr = nodeAttr(n)
	out.SetTimeout(nodeTTL)
	return fuse.OK
}

// Mkdir always refuses: directories are not creatable in this mount.
func (fs *Filesystem) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	return fuse.Status(syscall.EACCES)
}

// Open implements spec §4.3's open contract: the root cannot be opened
// as a file, help files and known nodes succeed with fh == ino.
func (fs *Filesystem) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	ino := input.NodeId
	if ino == RootIno {
		return fuse.Status(syscall.ENOENT)
	}
	if _, ok := staticfiles.ByIno(ino); ok {
		out.Fh = ino
		return fuse.OK
	}
	if _, err := fs.table.Get(ino); err == nil {
		out.Fh = ino
		return fuse.OK
	}
	return fuse.Status(syscall.ENOENT)
}

// Read only ever serves the two embedded help files (spec §4.3, §6):
// this is the only readable content this write-only mount exposes.
func (fs *Filesystem) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	f, ok := staticfiles.ByIno(input.NodeId)
	if !ok {
		return nil, fuse.Status(syscall.ENOENT)
	}

	offset := int(input.Offset)
	if offset >= len(f.Content) {
		return fuse.ReadResultData(nil), fuse.OK
	}
	end := offset + int(input.Size)
	if end > len(f.Content) {
		end = len(f.Content)
	}
	return fuse.ReadResultData(f.Content[offset:end]), fuse.OK
}

// Write feeds data to the node's Upload state machine (spec §4.1, §4.3).
// The kernel-supplied offset is ignored for the byte range it writes —
// data is always appended to the node in call-arrival order, as
// multipart upload semantics require — but is still checked against the
// number of bytes the node has accepted so far: a write that does not
// continue exactly where the last one left off is rejected with EINVAL
// rather than silently producing a scrambled object (spec §9, Open
// Questions).
func (fs *Filesystem) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	n, err := fs.table.Get(input.NodeId)
	if err != nil {
		return 0, fuse.Status(syscall.ENOENT)
	}

	u, written := n.TakeUpload()
	if input.Offset != written {
		n.PutUpload(u, 0)
		return 0, fuse.Status(syscall.EINVAL)
	}

	next, werr := u.Write(context.Background(), fs.client, data)
	n.PutUpload(next, uint64(len(data)))
	if werr != nil {
		fs.log.WithField("ino", input.NodeId).WithError(werr).Error("upload write failed")
		return 0, fuse.Status(syscall.EIO)
	}
	return uint32(len(data)), fuse.OK
}

// Flush always succeeds: uploads finalize on release, not on flush
// (spec §4.3).
func (fs *Filesystem) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

// Release removes the node from the table and finalizes its upload
// (spec §4.3). The FUSE RELEASE operation has no meaningful reply in
// the kernel ABI — go-fuse's RawFileSystem.Release returns nothing — so
// the ENOENT/EIO distinction spec.md's error table describes is only
// observable through the logs, exactly as a close(2) syscall never
// surfaces a deferred write failure to the caller.
func (fs *Filesystem) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	ino := input.NodeId
	if _, ok := staticfiles.ByIno(ino); ok {
		return
	}

	n, err := fs.table.Remove(ino)
	if err != nil {
		fs.log.WithField("ino", ino).Warn("release of unknown inode")
		return
	}

	u, _ := n.TakeUpload()
	if err := u.Finish(context.Background(), fs.client); err != nil {
		fs.log.WithField("ino", ino).WithError(err).Error("failed to finish upload on release")
	}
}

// OpenDir only permits opening the root as a directory.
func (fs *Filesystem) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if input.NodeId != RootIno {
		return fuse.Status(syscall.EACCES)
	}
	out.Fh = RootIno
	return fuse.OK
}

// ReadDir always returns exactly {., .., help-EN, help-DE} at offset 0
// and nothing thereafter (spec §4.3, §8 "No phantom directory
// entries") — user-created files are never listed.
func (fs *Filesystem) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	if input.NodeId != RootIno {
		return fuse.Status(syscall.ENOENT)
	}
	if input.Offset != 0 {
		return fuse.OK
	}

	out.AddDirEntry(fuse.DirEntry{Mode: syscall.S_IFDIR, Name: ".", Ino: RootIno})
	out.AddDirEntry(fuse.DirEntry{Mode: syscall.S_IFDIR, Name: "..", Ino: RootIno})
	for _, f := range staticfiles.All {
		out.AddDirEntry(fuse.DirEntry{Mode: syscall.S_IFREG, Name: f.Name, Ino: f.Ino})
	}
	return fuse.OK
}

// Create allocates a new inode and Node for name under the mount root
// (spec §4.3). The node is inserted into the table before the reply is
// filled in, so no later operation can observe its absence.
func (fs *Filesystem) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	if input.NodeId != RootIno {
		return fuse.Status(syscall.ENOENT)
	}
	fs.log.WithField("name", name).Debug("create")

	ino := fs.ids.Next()
	key := fs.target.Key(name)
	n := fs.table.Create(ino, key, time.Now())

	out.EntryOut.NodeId = ino
	out.EntryOut.Generation = 0
	out.EntryOut.Attr = nodeAttr(n)
	out.EntryOut.SetEntryTimeout(nodeTTL)
	out.EntryOut.SetAttrTimeout(nodeTTL)
	out.OpenOut.Fh = ino
	out.OpenOut.OpenFlags = 0
	return fuse.OK
}
