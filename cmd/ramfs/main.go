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

package main

import (
	"context"
	goflag "flag"
	"log"
	"os/user"
	"strconv"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"

	"github.com/ramfs-go/ramfs/internal/ramfs"
)

func main() {
	cmd := &cobra.Command{
		Use:   "ramfs <mount-point>",
		Short: "Mount an in-memory filesystem at the given directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
	}

	// jacobsa-fuse's own debug.go registers -fuse.debug against the
	// standard flag package; fold it into the cobra flag set rather than
	// inventing a second knob for the same thing.
	cmd.Flags().AddGoFlagSet(goflag.CommandLine)

	if err := cmd.Execute(); err != nil {
		log.Fatalf("ramfs: %v", err)
	}
}

func run(mountPoint string) error {
	u, err := user.Current()
	if err != nil {
		return err
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return err
	}

	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return err
	}

	fs := ramfs.NewFileSystem(timeutil.RealClock(), uint32(uid), uint32(gid))
	server := fuseutil.NewFileSystemServer(fs)

	cfg := &fuse.MountConfig{
		// Matches jacobsa-fuse's own samples: disable writeback caching so
		// the requesting PID is always available for future tracing hooks.
		DisableWritebackCaching: true,
	}

	mfs, err := fuse.Mount(mountPoint, server, cfg)
	if err != nil {
		return err
	}

	log.Printf("mounted ramfs at %s", mountPoint)

	if err := mfs.Join(context.Background()); err != nil {
		return err
	}

	log.Printf("unmounted %s", mountPoint)
	return nil
}
