package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"bazil.org/fuse"
	"github.com/dendrascience/dbooru/dbfs"
	"github.com/dendrascience/dbooru/version"
	"github.com/spf13/cobra"
)

// NewMountCmd creates and returns the mount subcommand for the dbooru CLI.
// It serves a store at the given mountpoint until interrupted.
func NewMountCmd() *cobra.Command {
	var (
		fsName     string
		allowOther bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "mount MOUNTPOINT",
		Short: "Mount a dbooru store",
		Long: `Mount the configured store at MOUNTPOINT.

Committed blobs appear under MOUNTPOINT/all by fid. Files created in
MOUNTPOINT/all are stored as new blobs when their last handle is closed.
Send SIGINT or SIGTERM to unmount.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMount(cmd, args[0], fsName, allowOther, debug)
		},
	}

	cmd.Flags().StringVar(&fsName, "fsname", "", "Filesystem name shown in mount tables (overrides the config file)")
	cmd.Flags().BoolVar(&allowOther, "allow-other", false, "Allow other users to access the mount")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log every FUSE message at debug level")

	return cmd
}

func runMount(cmd *cobra.Command, mountpoint, fsName string, allowOther, debug bool) error {
	b, cfg, logger, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	if pathsOverlap(cfg.Root, mountpoint) {
		return fmt.Errorf("mountpoint %s overlaps store %s", mountpoint, cfg.Root)
	}
	if fsName != "" {
		cfg.Mount.FSName = fsName
	}
	if allowOther {
		cfg.Mount.AllowOther = true
	}

	if debug {
		fuse.Debug = func(msg any) {
			logger.Debug("fuse", "msg", msg)
		}
	}

	opts := []fuse.MountOption{
		fuse.FSName(cfg.Mount.FSName),
		fuse.Subtype("dbooru"),
	}
	if cfg.Mount.AllowOther {
		opts = append(opts, fuse.AllowOther())
	}

	c, err := fuse.Mount(mountpoint, opts...)
	if err != nil {
		return fmt.Errorf("mount %s: %w", mountpoint, err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down", "mountpoint", mountpoint)
		if err := fuse.Unmount(mountpoint); err != nil {
			logger.Error("unmount failed", "mountpoint", mountpoint, "err", err)
		}
	}()

	d := dbfs.New(b, dbfs.Options{
		Logger:     logger,
		EntryValid: cfg.Mount.EntryTimeout,
		AttrValid:  cfg.Mount.AttrTimeout,
	})
	logger.Info("mounted",
		"version", version.GetVersion(),
		"mountpoint", mountpoint,
		"root", cfg.Root)

	// Serve returns once the kernel closes the connection after unmount.
	if err := d.Serve(context.WithoutCancel(ctx), c); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// pathsOverlap reports whether one path is the other or lies beneath it.
// Mounting over the store would hide the blobs the mount serves.
func pathsOverlap(a, b string) bool {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	within := func(parent, child string) bool {
		rel, err := filepath.Rel(parent, child)
		if err != nil {
			return false
		}
		return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
	}
	return within(absA, absB) || within(absB, absA)
}
