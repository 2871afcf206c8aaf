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
	"syscall"

	"github.com/jacobsa/fuse"
)

// fuse.ENOENT and fuse.ENOTEMPTY are the constants jacobsa-fuse's own
// errors.go defines; EEXIST, EINVAL and EISDIR have no equivalent there, so
// they're expressed directly as syscall.Errno, the same representation
// those constants unwrap to.
var (
	// ErrNotExist is returned for missing inodes and missing names.
	ErrNotExist = fuse.ENOENT

	// ErrExist is returned when mkdir or create finds the name already
	// taken.
	ErrExist = syscall.Errno(syscall.EEXIST)

	// ErrNotEmpty is returned when rmdir, or a rename that would clobber a
	// non-empty directory, finds children still present.
	ErrNotEmpty = fuse.ENOTEMPTY

	// ErrInvalid is returned when a creation-style operation names a parent
	// inode the dispatcher doesn't know about.
	ErrInvalid = syscall.Errno(syscall.EINVAL)

	// ErrIsDir is returned by unlink when asked to remove a directory,
	// rather than silently bypassing rmdir's emptiness check.
	ErrIsDir = syscall.Errno(syscall.EISDIR)
)
