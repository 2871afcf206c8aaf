// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ramfs

import (
	"fmt"
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// inode is the arena entry every table is keyed off of: it carries the
// attribute record, and, tagged by kind, either a directory-entry record
// or a file body. A single struct per inode number makes "the attribute
// record always matches the directory-entry or file-body record" true by
// construction rather than by bookkeeping: there's only ever one table to
// fall out of sync with itself.
//
// This mirrors samples/memfs/inode.go's own "Common attributes for files
// and directories" struct; the difference is the directory-entry record
// additionally carries this directory's own name and parent, since lookups
// of ".." are answered here rather than through the kernel dentry cache the
// teacher's sample relies on.
//
// INVARIANT: attrs.Mode&os.ModeDir != 0 iff this inode is a directory.
// INVARIANT: attrs.Size == uint64(len(contents))
// INVARIANT: len(contents) == 0 unless this is a regular file.
// INVARIANT: entries == nil unless this is a directory.
// INVARIANT: for each i, entries[i].Offset == fuseops.DirOffset(i+1)
// INVARIANT: no two non-tombstone entries share a Name.
type inode struct {
	clock timeutil.Clock

	mu syncutil.InvariantMutex

	attrs fuseops.InodeAttributes // GUARDED_BY(mu)

	// Directory-only. name and parent are this directory's own location in
	// the tree; entries are its children. A removed child leaves a
	// DT_Unknown tombstone behind so that the slice never shrinks and every
	// slot keeps Offset == index+1 until it is reused by a later AddChild.
	// The cookies a client sees are assigned by dirStream, not taken from
	// these slots.
	name     string                // GUARDED_BY(mu)
	parent   fuseops.InodeID       // GUARDED_BY(mu)
	entries  []fuseutil.Dirent     // GUARDED_BY(mu)

	// Regular-file-only.
	contents []byte // GUARDED_BY(mu)
}

// newInode creates an inode with the supplied attributes. attrs.Atime,
// attrs.Mtime, attrs.Ctime and attrs.Crtime are overwritten with the clock's
// current time; the caller is
// responsible for everything else (mode, uid, gid).
func newInode(
	clock timeutil.Clock,
	attrs fuseops.InodeAttributes) (in *inode) {
	now := clock.Now()
	attrs.Atime = now
	attrs.Mtime = now
	attrs.Ctime = now
	attrs.Crtime = now

	in = &inode{
		clock: clock,
		attrs: attrs,
	}
	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)

	return
}

func (in *inode) checkInvariants() {
	if in.isDir() && len(in.contents) != 0 {
		panic(fmt.Sprintf("unexpected contents on a directory: %v", in.contents))
	}

	if !in.isDir() && in.entries != nil {
		panic("non-nil entries on a non-directory")
	}

	if in.attrs.Size != uint64(len(in.contents)) {
		panic(fmt.Sprintf(
			"size mismatch: attrs.Size=%d len(contents)=%d",
			in.attrs.Size,
			len(in.contents)))
	}

	childNames := make(map[string]struct{})
	for i, e := range in.entries {
		if e.Offset != fuseops.DirOffset(i+1) {
			panic(fmt.Sprintf("unexpected offset at index %d: %v", i, e.Offset))
		}

		if e.Type == fuseutil.DT_Unknown {
			continue
		}

		if _, ok := childNames[e.Name]; ok {
			panic(fmt.Sprintf("duplicate child name: %s", e.Name))
		}
		childNames[e.Name] = struct{}{}
	}
}

// LOCKS_REQUIRED(in.mu)
func (in *inode) isDir() bool {
	return in.attrs.Mode&os.ModeDir != 0
}

// Len reports the number of live (non-tombstoned) children.
//
// REQUIRES: in.isDir()
// SHARED_LOCKS_REQUIRED(in.mu)
func (in *inode) Len() (n int) {
	for _, e := range in.entries {
		if e.Type != fuseutil.DT_Unknown {
			n++
		}
	}
	return
}

// findChild returns the slice index of the live entry named name, if any.
//
// REQUIRES: in.isDir()
// SHARED_LOCKS_REQUIRED(in.mu)
func (in *inode) findChild(name string) (i int, ok bool) {
	for i = range in.entries {
		if in.entries[i].Type != fuseutil.DT_Unknown && in.entries[i].Name == name {
			ok = true
			return
		}
	}
	return
}

// LookUpChild resolves name within this directory.
//
// REQUIRES: in.isDir()
// SHARED_LOCKS_REQUIRED(in.mu)
func (in *inode) LookUpChild(name string) (id fuseops.InodeID, ok bool) {
	i, ok := in.findChild(name)
	if ok {
		id = in.entries[i].Inode
	}
	return
}

// AddChild inserts an entry for a new child, reusing the first tombstoned
// slot if one exists and appending otherwise. It does not check for an
// existing entry with the same name; callers (mkdir, create, rename) must
// do that themselves, since the right error on collision differs by caller.
//
// REQUIRES: in.isDir()
// EXCLUSIVE_LOCKS_REQUIRED(in.mu)
func (in *inode) AddChild(id fuseops.InodeID, name string, dt fuseutil.DirentType) {
	in.attrs.Mtime = in.clock.Now()

	e := fuseutil.Dirent{
		Inode: id,
		Name:  name,
		Type:  dt,
	}

	for i := range in.entries {
		if in.entries[i].Type == fuseutil.DT_Unknown {
			e.Offset = fuseops.DirOffset(i + 1)
			in.entries[i] = e
			return
		}
	}

	e.Offset = fuseops.DirOffset(len(in.entries) + 1)
	in.entries = append(in.entries, e)
}

// RemoveChild tombstones the entry named name.
//
// REQUIRES: in.isDir()
// REQUIRES: an entry named name exists
// EXCLUSIVE_LOCKS_REQUIRED(in.mu)
func (in *inode) RemoveChild(name string) {
	in.attrs.Mtime = in.clock.Now()

	i, ok := in.findChild(name)
	if !ok {
		panic(fmt.Sprintf("unknown child: %s", name))
	}

	in.entries[i] = fuseutil.Dirent{
		Type:   fuseutil.DT_Unknown,
		Offset: fuseops.DirOffset(i + 1),
	}
}

// dirStream builds the full conceptual readdir stream: "." and ".." first,
// then the live children in slice order, with Offset reassigned to each
// entry's 1-based position in this stream. This is recomputed on every call
// rather than cached, since the dispatcher's serialized access to a
// directory makes that cheap and keeps tombstoned slots from leaking into
// cookies a client will ever see.
//
// REQUIRES: in.isDir()
// SHARED_LOCKS_REQUIRED(in.mu)
func (in *inode) dirStream(self, parent fuseops.InodeID) []fuseutil.Dirent {
	stream := make([]fuseutil.Dirent, 0, len(in.entries)+2)
	stream = append(stream, fuseutil.Dirent{Inode: self, Type: fuseutil.DT_Directory, Name: "."})
	stream = append(stream, fuseutil.Dirent{Inode: parent, Type: fuseutil.DT_Directory, Name: ".."})
	for _, e := range in.entries {
		if e.Type != fuseutil.DT_Unknown {
			stream = append(stream, e)
		}
	}

	for i := range stream {
		stream[i].Offset = fuseops.DirOffset(i + 1)
	}

	return stream
}

// ReadDir renders dirStream into the wire format fuseutil.AppendDirent
// produces, stopping before the output would exceed size bytes or once the
// directory is exhausted. offset 0 starts from the beginning; a nonzero
// offset k skips the first k+1 stream entries, so output resumes at 0-based
// stream index k+1 (the entry whose cookie is k+2).
//
// REQUIRES: in.isDir()
// SHARED_LOCKS_REQUIRED(in.mu)
func (in *inode) ReadDir(self, parent fuseops.InodeID, offset fuseops.DirOffset, size int) (data []byte) {
	stream := in.dirStream(self, parent)

	start := 0
	if offset != 0 {
		start = int(offset) + 1
	}

	for i := start; i < len(stream); i++ {
		next := fuseutil.AppendDirent(data, stream[i])
		if len(next) > size {
			break
		}
		data = next
	}

	return
}

// ReadAt serves a read of the file's contents. Offsets past the end of the
// body yield an empty read rather than an error.
//
// REQUIRES: !in.isDir()
// SHARED_LOCKS_REQUIRED(in.mu)
func (in *inode) ReadAt(p []byte, off int64) (n int) {
	if off < 0 || off >= int64(len(in.contents)) {
		return 0
	}

	n = copy(p, in.contents[off:])
	return
}

// WriteAt implements the file-body edit primitive. Note the third case:
// when the write lands entirely inside the current body without reaching
// its end, the data is inserted, not overwritten. Non-POSIX, deliberate;
// see DESIGN.md.
//
// REQUIRES: !in.isDir()
// EXCLUSIVE_LOCKS_REQUIRED(in.mu)
func (in *inode) WriteAt(p []byte, off int64) (n int) {
	in.attrs.Atime = in.clock.Now()
	in.attrs.Mtime = in.attrs.Atime

	switch {
	case off >= int64(len(in.contents)):
		// Append past end: zero-fill the gap, then lay the new data down.
		padding := make([]byte, off-int64(len(in.contents)))
		in.contents = append(in.contents, padding...)
		in.contents = append(in.contents, p...)

	case off+int64(len(p)) > int64(len(in.contents)):
		// Overwrite + extend: the suffix from off onward is replaced and the
		// body grows to off+len(p).
		in.contents = append(in.contents[:off:off], p...)

	default:
		// Interior insertion: splice p in at off without removing anything.
		newContents := make([]byte, 0, len(in.contents)+len(p))
		newContents = append(newContents, in.contents[:off]...)
		newContents = append(newContents, p...)
		newContents = append(newContents, in.contents[off:]...)
		in.contents = newContents
	}

	in.attrs.Size = uint64(len(in.contents))
	n = len(p)
	return
}

// Truncate implements the truncate primitive: bytes beyond n are dropped;
// growing past the current length is a no-op (no zero-fill on
// truncate-grow).
//
// REQUIRES: !in.isDir()
// EXCLUSIVE_LOCKS_REQUIRED(in.mu)
func (in *inode) Truncate(n uint64) {
	if n <= uint64(len(in.contents)) {
		in.contents = in.contents[:n]
		in.attrs.Size = n
	}
}

// SetAttributes applies the non-nil fields to this inode's attribute
// record. size, when present and this is a regular file, truncates the
// body via Truncate first.
//
// EXCLUSIVE_LOCKS_REQUIRED(in.mu)
func (in *inode) SetAttributes(size *uint64, mode *os.FileMode, atime, mtime *time.Time) {
	if size != nil && !in.isDir() {
		in.Truncate(*size)
	}

	if mode != nil {
		in.attrs.Mode = *mode
	}

	if atime != nil {
		in.attrs.Atime = *atime
	}

	if mtime != nil {
		in.attrs.Mtime = *mtime
	} else {
		in.attrs.Mtime = in.clock.Now()
	}

	in.attrs.Ctime = in.clock.Now()
}
