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

// This file adapts *FileSystem to fuseutil.FileSystem: each method here
// unpacks its op, drives the matching logic method in fs.go, and responds.
// Keeping the logic out of these methods means fs_test.go can exercise it
// directly, without constructing *fuseops.XxxOp values (whose Respond
// machinery depends on transport-internal state no test should fabricate).
package ramfs

import (
	"context"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/reqtrace"
)

// trace starts a reqtrace span for the duration of a handler call. The real
// op's context isn't exposed by fuseops.Op, so this traces against a fresh
// background context rather than the (unexported) one the kernel request
// carries; see fuseops/common_op.go for the StartSpan/ReportFunc shape this
// mirrors.
func trace(name string) func() {
	_, report := reqtrace.StartSpan(context.Background(), name)
	return func() { report(nil) }
}

func (fs *FileSystem) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

func (fs *FileSystem) ForgetInode(op *fuseops.ForgetInodeOp) {
	// Every removed inode is already dropped from fs.inodes by rmdir, unlink or
	// rename's clobber path; there's nothing left to do here but ack.
	op.Respond(nil)
}

func (fs *FileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	defer trace("GetInodeAttributes")()

	attrs, expiration, err := fs.getInodeAttributes(op.Inode)
	op.Attributes = attrs
	op.AttributesExpiration = expiration
	op.Respond(err)
}

func (fs *FileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	defer trace("SetInodeAttributes")()

	attrs, err := fs.setInodeAttributes(op.Inode, op.Size, op.Mode, op.Atime, op.Mtime)
	op.Attributes = attrs
	op.Respond(err)
}

func (fs *FileSystem) LookUpInode(op *fuseops.LookUpInodeOp) {
	defer trace("LookUpInode")()

	entry, err := fs.lookUpInode(op.Parent, op.Name)
	op.Entry = entry
	op.Respond(err)
}

func (fs *FileSystem) MkDir(op *fuseops.MkDirOp) {
	defer trace("MkDir")()

	entry, err := fs.mkDir(op.Parent, op.Name, op.Mode)
	op.Entry = entry
	op.Respond(err)
}

func (fs *FileSystem) CreateFile(op *fuseops.CreateFileOp) {
	defer trace("CreateFile")()

	entry, handle, err := fs.createFile(op.Parent, op.Name, op.Mode)
	op.Entry = entry
	op.Handle = handle
	op.Respond(err)
}

func (fs *FileSystem) RmDir(op *fuseops.RmDirOp) {
	defer trace("RmDir")()
	op.Respond(fs.rmDir(op.Parent, op.Name))
}

func (fs *FileSystem) Unlink(op *fuseops.UnlinkOp) {
	defer trace("Unlink")()
	op.Respond(fs.unlink(op.Parent, op.Name))
}

func (fs *FileSystem) Rename(op *fuseops.RenameOp) {
	defer trace("Rename")()
	op.Respond(fs.rename(op.OldParent, op.OldName, op.NewParent, op.NewName))
}

func (fs *FileSystem) OpenDir(op *fuseops.OpenDirOp) {
	defer trace("OpenDir")()

	handle, err := fs.openDir(op.Inode)
	op.Handle = handle
	op.Respond(err)
}

func (fs *FileSystem) ReadDir(op *fuseops.ReadDirOp) {
	defer trace("ReadDir")()

	data, err := fs.readDir(op.Inode, op.Offset, op.Size)
	op.Data = data
	op.Respond(err)
}

func (fs *FileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	op.Respond(nil)
}

func (fs *FileSystem) OpenFile(op *fuseops.OpenFileOp) {
	defer trace("OpenFile")()

	handle, err := fs.openFile(op.Inode)
	op.Handle = handle
	op.Respond(err)
}

func (fs *FileSystem) ReadFile(op *fuseops.ReadFileOp) {
	defer trace("ReadFile")()

	data, err := fs.readFile(op.Inode, op.Offset, op.Size)
	op.Data = data
	op.Respond(err)
}

func (fs *FileSystem) WriteFile(op *fuseops.WriteFileOp) {
	defer trace("WriteFile")()

	_, err := fs.writeFile(op.Inode, op.Offset, op.Data)
	op.Respond(err)
}

func (fs *FileSystem) SyncFile(op *fuseops.SyncFileOp) {
	op.Respond(nil)
}

func (fs *FileSystem) FlushFile(op *fuseops.FlushFileOp) {
	op.Respond(nil)
}

func (fs *FileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	op.Respond(nil)
}
