// Command tagfs mounts a tag-based virtual filesystem (spec.md §1) at the
// path given by -m, backed by the Metadata Store and Blob Store rooted at
// -d. Its flag handling follows cmd/registry/main.go's shape in the
// reference registry: stdlib flag, a custom usage(), a fatalf() helper,
// not cobra, which the reference registry's own binaries don't use either.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/sirupsen/logrus"

	"github.com/dmorris/tagfs/blobstore"
	"github.com/dmorris/tagfs/configuration"
	"github.com/dmorris/tagfs/fusefs"
	"github.com/dmorris/tagfs/internal/dcontext"
	"github.com/dmorris/tagfs/metastore"
	"github.com/dmorris/tagfs/mutator"
	"github.com/dmorris/tagfs/version"
)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			version.FprintVersion(os.Stdout)
			return
		}
	}

	cfg, err := configuration.Parse("tagfs", os.Args[1:])
	if err != nil {
		fatalf("configuration error: %v", err)
	}

	configureLogging(cfg)

	ctx := context.Background()
	log := dcontext.GetLogger(ctx)
	log.Infof("%s %s", version.Package(), version.Version())
	log.Infof("configuration:\n%s", cfg.Dump())

	meta, err := metastore.Open(cfg.TagsDSN())
	if err != nil {
		fatalf("metadata store: %v", err)
	}
	defer meta.Close()

	blobs, err := blobstore.Open(cfg.StoreDir())
	if err != nil {
		fatalf("blob store: %v", err)
	}

	engine := mutator.New(meta, blobs, mutator.Config{
		FlatDelete:     cfg.FlatDelete,
		AnywhereDelete: cfg.AnywhereDelete,
		MountPoint:     cfg.MountPoint,
	})

	if cfg.ScrubOnStart {
		report, err := engine.Scrub(ctx)
		if err != nil {
			fatalf("scrub: %v", err)
		}
		dcontext.GetLoggerWithFields(ctx, map[any]any{
			"missing_blobs": report.MissingBlobs,
			"orphan_blobs":  report.OrphanBlobs,
		}).Info("scrub complete")
	}

	tfs := fusefs.New(engine, meta, cfg.HiddenLimit, cfg.QuietFuse, cfg.MountPoint)
	nfs := pathfs.NewPathNodeFs(tfs, nil)
	conn := nodefs.NewFileSystemConnector(nfs.Root(), nodefs.NewOptions())

	mountOpts := fuse.MountOptions{
		FsName:         "tagfs",
		Name:           "tagfs",
		Options:        cfg.MountOptions,
		SingleThreaded: true,
		Debug:          cfg.Verbosity >= configuration.Debug,
	}

	server, err := fuse.NewServer(conn.RawFS(), cfg.MountPoint, &mountOpts)
	if err != nil {
		fatalf("mount %s: %v", cfg.MountPoint, err)
	}

	log.Infof("mounted at %s, backed by %s", cfg.MountPoint, cfg.DataStore)
	server.Serve()
}

func configureLogging(cfg configuration.Config) {
	switch cfg.Verbosity {
	case configuration.Debug:
		logrus.SetLevel(logrus.DebugLevel)
	case configuration.Info:
		logrus.SetLevel(logrus.InfoLevel)
	default:
		logrus.SetLevel(logrus.WarnLevel)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:", os.Args[0], "-m <mountpoint> -d <datastore> [-o opts] [-v|-vv] [-s] [-a] [-l N] [-scrub] [-version]")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	usage()
	os.Exit(1)
}
