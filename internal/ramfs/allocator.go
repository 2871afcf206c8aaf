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
	"github.com/jacobsa/fuse/fuseops"
)

// inodeAllocator hands out fresh, strictly increasing inode numbers. Unlike
// samples/memfs's own allocator, it never recycles an ID: a removed inode's
// number stays retired for the life of the mount rather than feeding a free
// list.
//
// INVARIANT: next > fuseops.RootInodeID
type inodeAllocator struct {
	next fuseops.InodeID
}

func newInodeAllocator() *inodeAllocator {
	return &inodeAllocator{next: fuseops.RootInodeID + 1}
}

// alloc mints a fresh inode number. Never returns fuseops.RootInodeID.
func (a *inodeAllocator) alloc() (id fuseops.InodeID) {
	id = a.next
	a.next++
	return
}

// highWaterMark reports the smallest inode number that has never been
// allocated, i.e. the value the next call to alloc will return. Exposed
// only for invariant checking.
func (a *inodeAllocator) highWaterMark() fuseops.InodeID {
	return a.next
}
