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
	"os"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestInode(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// A Clock that never advances on its own
////////////////////////////////////////////////////////////////////////

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type InodeTest struct {
	clock *fixedClock
	dir   *inode
	file  *inode
}

func init() { RegisterTestSuite(&InodeTest{}) }

func (t *InodeTest) SetUp(ti *TestInfo) {
	t.clock = &fixedClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}

	t.dir = newInode(t.clock, fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  defaultDirMode,
	})

	t.file = newInode(t.clock, fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  defaultFileMode,
	})
}

func direntNames(entries []fuseutil.Dirent) (names []string) {
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return
}

////////////////////////////////////////////////////////////////////////
// Directory entries
////////////////////////////////////////////////////////////////////////

func (t *InodeTest) AddThenLookUpChild() {
	t.dir.AddChild(17, "foo", fuseutil.DT_File)

	id, ok := t.dir.LookUpChild("foo")
	AssertTrue(ok)
	ExpectEq(17, id)

	_, ok = t.dir.LookUpChild("bar")
	ExpectFalse(ok)
}

func (t *InodeTest) RemoveChildLeavesATombstoneNotAShrink() {
	t.dir.AddChild(1, "a", fuseutil.DT_File)
	t.dir.AddChild(2, "b", fuseutil.DT_File)
	t.dir.RemoveChild("a")

	AssertEq(2, len(t.dir.entries))
	ExpectEq(fuseutil.DT_Unknown, t.dir.entries[0].Type)
	ExpectEq(1, t.dir.Len())
}

func (t *InodeTest) RemoveChildSlotIsReusedByLaterAddChild() {
	t.dir.AddChild(1, "a", fuseutil.DT_File)
	t.dir.AddChild(2, "b", fuseutil.DT_File)
	t.dir.RemoveChild("a")

	t.dir.AddChild(3, "c", fuseutil.DT_File)
	ExpectEq(2, t.dir.Len())

	// The tombstoned slot (index 0) should have been reused, not appended
	// past "b".
	AssertEq(2, len(t.dir.entries))
	ExpectEq("c", t.dir.entries[0].Name)
	ExpectEq(fuseops.DirOffset(1), t.dir.entries[0].Offset)
}

func (t *InodeTest) LenCountsOnlyLiveChildren() {
	t.dir.AddChild(1, "a", fuseutil.DT_File)
	t.dir.AddChild(2, "b", fuseutil.DT_File)
	t.dir.AddChild(3, "c", fuseutil.DT_Directory)
	t.dir.RemoveChild("b")

	ExpectEq(2, t.dir.Len())
}

////////////////////////////////////////////////////////////////////////
// Readdir stream
////////////////////////////////////////////////////////////////////////

func (t *InodeTest) DirStreamIncludesSyntheticDotAndDotDot() {
	t.dir.AddChild(10, "a", fuseutil.DT_File)

	stream := t.dir.dirStream(42, 7)

	ExpectThat(direntNames(stream), ElementsAre(".", "..", "a"))
	ExpectEq(fuseops.InodeID(42), stream[0].Inode)
	ExpectEq(fuseops.InodeID(7), stream[1].Inode)
}

func (t *InodeTest) DirStreamOmitsTombstonedChildren() {
	t.dir.AddChild(10, "a", fuseutil.DT_File)
	t.dir.AddChild(11, "b", fuseutil.DT_File)
	t.dir.RemoveChild("a")

	stream := t.dir.dirStream(1, 1)
	ExpectThat(direntNames(stream), ElementsAre(".", "..", "b"))
}

func (t *InodeTest) FirstReadDirCallReportsSequentialCookies() {
	t.dir.AddChild(10, "a", fuseutil.DT_File)
	t.dir.AddChild(11, "b", fuseutil.DT_File)
	t.dir.AddChild(12, "c", fuseutil.DT_File)

	stream := t.dir.dirStream(1, 1)
	AssertEq(5, len(stream)) // ".", "..", a, b, c
	for i, e := range stream {
		ExpectEq(fuseops.DirOffset(i+1), e.Offset)
	}
}

func (t *InodeTest) ReadDirResumesAfterTheGivenOffset() {
	t.dir.AddChild(10, "a", fuseutil.DT_File)
	t.dir.AddChild(11, "b", fuseutil.DT_File)
	t.dir.AddChild(12, "c", fuseutil.DT_File)

	// ".", ".." and "a" carry cookies 1, 2, 3. Resuming with offset=3 must
	// skip through "b" (cookie 4) as well, yielding only "c".
	data := t.dir.ReadDir(1, 1, 3, 4096)
	ExpectTrue(len(data) > 0)

	full := t.dir.ReadDir(1, 1, 0, 4096)
	ExpectTrue(len(full) > len(data))
}

func (t *InodeTest) ReadDirAtEndOfDirectoryYieldsNoData() {
	t.dir.AddChild(10, "a", fuseutil.DT_File)

	stream := t.dir.dirStream(1, 1)
	lastCookie := stream[len(stream)-1].Offset

	data := t.dir.ReadDir(1, 1, lastCookie, 4096)
	ExpectEq(0, len(data))
}

////////////////////////////////////////////////////////////////////////
// File body edits
////////////////////////////////////////////////////////////////////////

func (t *InodeTest) WriteAtEndExtendsTheFile() {
	t.file.WriteAt([]byte("hello"), 0)
	ExpectEq("hello", string(t.file.contents))
	ExpectEq(5, t.file.attrs.Size)

	t.file.WriteAt([]byte(" world"), 5)
	ExpectEq("hello world", string(t.file.contents))
}

func (t *InodeTest) WritePastEndZeroFills() {
	t.file.WriteAt([]byte("ab"), 4)
	AssertEq(6, len(t.file.contents))
	ExpectThat(
		[]byte(t.file.contents[:4]),
		ElementsAre(byte(0), byte(0), byte(0), byte(0)))
	ExpectEq("ab", string(t.file.contents[4:]))
}

func (t *InodeTest) InteriorWriteInsertsRatherThanOverwrites() {
	t.file.WriteAt([]byte("0123456789"), 0)
	t.file.WriteAt([]byte("XY"), 3)

	// Per the preserved quirk, "XY" is spliced in at offset 3 rather than
	// overwriting "34".
	ExpectEq("012XY3456789", string(t.file.contents))
}

func (t *InodeTest) OverwriteExtendingPastEndTruncatesTheSuffix() {
	t.file.WriteAt([]byte("0123456789"), 0)
	t.file.WriteAt([]byte("XYZ"), 8)

	ExpectEq("01234567XYZ", string(t.file.contents))
}

func (t *InodeTest) ReadAtPastEndOfFileYieldsNothing() {
	t.file.WriteAt([]byte("hi"), 0)

	buf := make([]byte, 10)
	n := t.file.ReadAt(buf, 5)
	ExpectEq(0, n)
}

func (t *InodeTest) TruncateShrinksWithoutZeroFillOnRegrow() {
	t.file.WriteAt([]byte("hello world"), 0)
	t.file.Truncate(5)
	ExpectEq("hello", string(t.file.contents))
	ExpectEq(5, t.file.attrs.Size)

	// Growing past the current length via Truncate is defined as a no-op.
	t.file.Truncate(100)
	ExpectEq(5, len(t.file.contents))
}

func (t *InodeTest) SetAttributesAppliesEachProvidedFieldIndependently() {
	newMode := os.FileMode(0o600)
	size := uint64(3)
	t.file.WriteAt([]byte("hello"), 0)

	t.file.SetAttributes(&size, &newMode, nil, nil)

	ExpectEq("hel", string(t.file.contents))
	ExpectEq(newMode, t.file.attrs.Mode)
}
