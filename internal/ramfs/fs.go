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

// Package ramfs implements an in-memory filesystem: an attribute table,
// directory-entry table and file-body table, reached through the
// fuseutil.FileSystem op vocabulary (see handlers.go). This file holds the
// table itself and the logic each handler drives; it has no dependency on
// the op types, so it can be exercised directly by tests without going
// through fuseutil's Respond machinery.
package ramfs

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// FileSystem is the dispatcher: a single coarse lock over a map of inode
// number to *inode. handlers.go adapts it to fuseutil.FileSystem; symlinks,
// hard links, xattrs, locking and fallocate are inherited, unimplemented,
// from fuseutil.NotImplementedFileSystem.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	clock timeutil.Clock

	mu syncutil.InvariantMutex

	alloc *inodeAllocator // GUARDED_BY(mu)

	// inode 1 is always the root.
	inodes map[fuseops.InodeID]*inode // GUARDED_BY(mu)

	// Next handle to mint for OpenDir/OpenFile. Handles aren't meaningful to
	// this in-memory filesystem beyond being echoed back by the kernel, so a
	// single counter shared between directories and files is fine.
	nextHandle fuseops.HandleID // GUARDED_BY(mu)

	uid uint32
	gid uint32
}

// defaultFileMode and defaultDirMode are the mode defaults applied to newly
// created inodes (including the root) whenever the kernel supplies no
// permission bits. Deliberately inverted from jacobsa-fuse's own
// samples/memfs defaults; see DESIGN.md.
const (
	defaultFileMode = os.FileMode(0o755)
	defaultDirMode  = os.FileMode(0o644) | os.ModeDir
)

// NewFileSystem creates an empty filesystem with a single root directory,
// owned by uid/gid, using clock for all timestamp bookkeeping.
func NewFileSystem(clock timeutil.Clock, uid, gid uint32) *FileSystem {
	fs := &FileSystem{
		clock:  clock,
		alloc:  newInodeAllocator(),
		inodes: make(map[fuseops.InodeID]*inode),
		uid:    uid,
		gid:    gid,
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	root := newInode(clock, fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  defaultDirMode,
		Uid:   uid,
		Gid:   gid,
	})
	root.parent = fuseops.RootInodeID
	fs.inodes[fuseops.RootInodeID] = root

	return fs
}

// checkInvariants verifies that every inode the directory tables reference
// is present, and that the high water mark exceeds every live inode
// number.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) checkInvariants() {
	for id, in := range fs.inodes {
		if id != fuseops.RootInodeID && id >= fs.alloc.highWaterMark() {
			panic("live inode at or past the allocator's high water mark")
		}

		if !in.isDir() {
			continue
		}

		for _, e := range in.entries {
			if e.Type == fuseutil.DT_Unknown {
				continue
			}
			if _, ok := fs.inodes[e.Inode]; !ok {
				panic("dangling directory entry")
			}
		}
	}
}

// getInodeOrDie returns the inode for id, panicking if the kernel has
// handed the dispatcher an inode number it never issued or has already
// forgotten. That's a transport-level contract violation, not a condition
// any operation is expected to return an error for.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) getInodeOrDie(id fuseops.InodeID) *inode {
	in, ok := fs.inodes[id]
	if !ok {
		panic("unknown inode")
	}
	return in
}

// attrTTL is the validity timeout applied to every attribute/entry reply,
// per the teacher's own samples/memfs/fs.go pattern of stamping
// AttributesExpiration/EntryExpiration on each such reply.
const attrTTL = time.Second

// mintChildEntry builds a ChildInodeEntry for a freshly-created or
// freshly-looked-up child, reading its attributes under its own lock.
func (fs *FileSystem) mintChildEntry(id fuseops.InodeID, in *inode) (e fuseops.ChildInodeEntry) {
	in.mu.Lock()
	defer in.mu.Unlock()

	e.Child = id
	e.Attributes = in.attrs

	expiry := fs.clock.Now().Add(attrTTL)
	e.AttributesExpiration = expiry
	e.EntryExpiration = expiry
	return
}

// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) mintHandle() (h fuseops.HandleID) {
	h = fs.nextHandle
	fs.nextHandle++
	return
}

////////////////////////////////////////////////////////////////////////
// getattr / setattr
////////////////////////////////////////////////////////////////////////

func (fs *FileSystem) getInodeAttributes(id fuseops.InodeID) (fuseops.InodeAttributes, time.Time, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ok := fs.inodes[id]
	if !ok {
		return fuseops.InodeAttributes{}, time.Time{}, ErrNotExist
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	return in.attrs, fs.clock.Now().Add(attrTTL), nil
}

func (fs *FileSystem) setInodeAttributes(
	id fuseops.InodeID,
	size *uint64,
	mode *os.FileMode,
	atime, mtime *time.Time) (fuseops.InodeAttributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ok := fs.inodes[id]
	if !ok {
		return fuseops.InodeAttributes{}, ErrNotExist
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	in.SetAttributes(size, mode, atime, mtime)
	return in.attrs, nil
}

////////////////////////////////////////////////////////////////////////
// lookup
////////////////////////////////////////////////////////////////////////

func (fs *FileSystem) lookUpInode(
	parentID fuseops.InodeID, name string) (fuseops.ChildInodeEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[parentID]
	if !ok {
		return fuseops.ChildInodeEntry{}, ErrNotExist
	}

	parent.mu.Lock()
	childID, ok := parent.LookUpChild(name)
	parent.mu.Unlock()

	if !ok {
		return fuseops.ChildInodeEntry{}, ErrNotExist
	}

	child, ok := fs.inodes[childID]
	if !ok {
		return fuseops.ChildInodeEntry{}, ErrNotExist
	}
	return fs.mintChildEntry(childID, child), nil
}

////////////////////////////////////////////////////////////////////////
// mkdir / create
////////////////////////////////////////////////////////////////////////

func (fs *FileSystem) mkDir(
	parentID fuseops.InodeID, name string, mode os.FileMode) (fuseops.ChildInodeEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[parentID]
	if !ok {
		return fuseops.ChildInodeEntry{}, ErrInvalid
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	if _, exists := parent.LookUpChild(name); exists {
		return fuseops.ChildInodeEntry{}, ErrExist
	}

	effective := mode | os.ModeDir
	if mode&os.ModePerm == 0 {
		effective = defaultDirMode
	}

	id := fs.alloc.alloc()
	child := newInode(fs.clock, fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  effective,
		Uid:   fs.uid,
		Gid:   fs.gid,
	})
	child.name = name
	child.parent = parentID
	fs.inodes[id] = child

	parent.AddChild(id, name, fuseutil.DT_Directory)

	return fs.mintChildEntry(id, child), nil
}

func (fs *FileSystem) createFile(
	parentID fuseops.InodeID, name string, mode os.FileMode) (
	fuseops.ChildInodeEntry, fuseops.HandleID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[parentID]
	if !ok {
		return fuseops.ChildInodeEntry{}, 0, ErrInvalid
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	if _, exists := parent.LookUpChild(name); exists {
		return fuseops.ChildInodeEntry{}, 0, ErrExist
	}

	effective := mode
	if effective&os.ModePerm == 0 {
		effective = defaultFileMode
	}

	id := fs.alloc.alloc()
	child := newInode(fs.clock, fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  effective,
		Uid:   fs.uid,
		Gid:   fs.gid,
	})
	child.name = name
	child.parent = parentID
	fs.inodes[id] = child

	parent.AddChild(id, name, fuseutil.DT_File)

	return fs.mintChildEntry(id, child), fs.mintHandle(), nil
}

////////////////////////////////////////////////////////////////////////
// rmdir / unlink
////////////////////////////////////////////////////////////////////////

func (fs *FileSystem) rmDir(parentID fuseops.InodeID, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[parentID]
	if !ok {
		return ErrNotExist
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	childID, ok := parent.LookUpChild(name)
	if !ok {
		return ErrNotExist
	}

	child, ok := fs.inodes[childID]
	if !ok {
		return ErrNotExist
	}
	child.mu.Lock()
	empty := !child.isDir() || child.Len() == 0
	child.mu.Unlock()

	if !empty {
		return ErrNotEmpty
	}

	parent.RemoveChild(name)
	delete(fs.inodes, childID)

	return nil
}

// unlink removes a file from its parent. Rejects directories outright with
// ErrIsDir rather than silently bypassing rmdir's emptiness check; see
// DESIGN.md.
func (fs *FileSystem) unlink(parentID fuseops.InodeID, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[parentID]
	if !ok {
		return ErrNotExist
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	childID, ok := parent.LookUpChild(name)
	if !ok {
		return ErrNotExist
	}

	child, ok := fs.inodes[childID]
	if !ok {
		return ErrNotExist
	}
	child.mu.Lock()
	isDir := child.isDir()
	child.mu.Unlock()

	if isDir {
		return ErrIsDir
	}

	parent.RemoveChild(name)
	delete(fs.inodes, childID)

	return nil
}

////////////////////////////////////////////////////////////////////////
// rename
////////////////////////////////////////////////////////////////////////

// rename moves a child from one directory to another (possibly the same
// one), keeping the moved inode's stored name/parent in sync. An existing
// entry at the destination is unlinked (or rejected with ErrNotEmpty if
// it's a non-empty directory) rather than orphaned; see DESIGN.md.
func (fs *FileSystem) rename(
	oldParentID fuseops.InodeID, oldName string,
	newParentID fuseops.InodeID, newName string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldParent, ok := fs.inodes[oldParentID]
	if !ok {
		return ErrInvalid
	}
	newParent, ok := fs.inodes[newParentID]
	if !ok {
		return ErrInvalid
	}

	oldParent.mu.Lock()
	defer oldParent.mu.Unlock()

	movedID, ok := oldParent.LookUpChild(oldName)
	if !ok {
		return ErrNotExist
	}
	moved, ok := fs.inodes[movedID]
	if !ok {
		return ErrNotExist
	}

	// Renaming an entry onto its own name leaves everything as it is.
	if oldParentID == newParentID && oldName == newName {
		return nil
	}

	// Locking both parents' mutexes when they're the same inode would
	// deadlock InvariantMutex's non-reentrant RWMutex; only take the second
	// lock when it's actually a different inode.
	sameParent := oldParentID == newParentID
	if !sameParent {
		newParent.mu.Lock()
		defer newParent.mu.Unlock()
	}

	if victimID, exists := newParent.LookUpChild(newName); exists {
		victim, ok := fs.inodes[victimID]
		if !ok {
			return ErrNotExist
		}
		victim.mu.Lock()
		victimIsDir := victim.isDir()
		victimEmpty := !victimIsDir || victim.Len() == 0
		victim.mu.Unlock()

		if victimIsDir && !victimEmpty {
			return ErrNotEmpty
		}

		newParent.RemoveChild(newName)
		delete(fs.inodes, victimID)
	}

	dt := fuseutil.DT_File
	moved.mu.Lock()
	if moved.isDir() {
		dt = fuseutil.DT_Directory
	}
	moved.name = newName
	moved.parent = newParentID
	moved.mu.Unlock()

	oldParent.RemoveChild(oldName)
	newParent.AddChild(movedID, newName, dt)

	return nil
}

////////////////////////////////////////////////////////////////////////
// Directory handles
////////////////////////////////////////////////////////////////////////

func (fs *FileSystem) openDir(id fuseops.InodeID) (fuseops.HandleID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ok := fs.inodes[id]
	if !ok {
		return 0, ErrNotExist
	}

	in.mu.Lock()
	isDir := in.isDir()
	in.mu.Unlock()

	if !isDir {
		return 0, ErrInvalid
	}

	return fs.mintHandle(), nil
}

func (fs *FileSystem) readDir(
	id fuseops.InodeID, offset fuseops.DirOffset, size int) ([]byte, error) {
	fs.mu.Lock()
	in, ok := fs.inodes[id]
	fs.mu.Unlock()

	if !ok {
		return nil, ErrNotExist
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ReadDir(id, in.parent, offset, size), nil
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

func (fs *FileSystem) openFile(id fuseops.InodeID) (fuseops.HandleID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ok := fs.inodes[id]
	if !ok {
		return 0, ErrNotExist
	}

	in.mu.Lock()
	isDir := in.isDir()
	in.mu.Unlock()

	if isDir {
		return 0, ErrInvalid
	}

	return fs.mintHandle(), nil
}

func (fs *FileSystem) readFile(
	id fuseops.InodeID, offset int64, size int) ([]byte, error) {
	fs.mu.Lock()
	in, ok := fs.inodes[id]
	fs.mu.Unlock()

	if !ok {
		return nil, ErrNotExist
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	buf := make([]byte, size)
	n := in.ReadAt(buf, offset)
	return buf[:n], nil
}

// writeFile implements the file-body edit primitive, including the
// preserved interior-insertion quirk; see inode.WriteAt.
func (fs *FileSystem) writeFile(id fuseops.InodeID, offset int64, data []byte) (int, error) {
	fs.mu.Lock()
	in, ok := fs.inodes[id]
	fs.mu.Unlock()

	if !ok {
		return 0, ErrNotExist
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	return in.WriteAt(data, offset), nil
}

var _ fuseutil.FileSystem = (*FileSystem)(nil)
