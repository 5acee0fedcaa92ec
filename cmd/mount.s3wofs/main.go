// Command mount.s3wofs is the FUSE mount helper: it is invoked the way
// mount(8) invokes any mount.<type> helper — a positional device, a
// positional mountpoint, then options forwarded from mount(8) — and
// exposes an S3 bucket as a write-only directory (spec §6).
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/takkt-ag/s3wofs-go/internal/fsys"
	"github.com/takkt-ag/s3wofs-go/internal/mounttarget"
	"github.com/takkt-ag/s3wofs-go/internal/s3client"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// options holds the parsed mount(8) calling convention.
type options struct {
	device     string
	mountpoint string

	foreground bool
	sloppy     bool
	fake       bool
	noMtab     bool
	verbose    bool
	fsType     string
	extraOpts  []string

	region string
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	for _, arg := range os.Args[1:] {
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}

	log := logrus.New()
	if opts.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(opts, log); err != nil {
		log.Fatalf("mount.s3wofs: %v", err)
	}
}

// parseArgs implements the mount(8) calling convention: the first two
// non-flag arguments are the device and the mountpoint (in that order),
// remaining flags are mount(8) passthrough options.
//
// Example:
//
//	mount.s3wofs my-bucket:uploads /mnt/uploads -o fsname=x -v
func parseArgs(args []string) (options, error) {
	var opts options
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--foreground":
			opts.foreground = true
		case arg == "-s":
			opts.sloppy = true
		case arg == "-f":
			opts.fake = true
		case arg == "-n":
			opts.noMtab = true
		case arg == "-v":
			opts.verbose = true
		case arg == "-t":
			i++
			if i >= len(args) {
				return options{}, fmt.Errorf("-t requires an argument")
			}
			opts.fsType = args[i]
		case arg == "-o":
			i++
			if i >= len(args) {
				return options{}, fmt.Errorf("-o requires an argument")
			}
			opts.extraOpts = append(opts.extraOpts, strings.Split(args[i], ",")...)
		case strings.HasPrefix(arg, "-"):
			return options{}, fmt.Errorf("unrecognized option %q", arg)
		default:
			positional = append(positional, arg)
		}
	}

	if len(positional) < 2 {
		return options{}, fmt.Errorf("expected a device and a mountpoint, got %d positional argument(s)", len(positional))
	}
	opts.device = positional[0]
	opts.mountpoint = positional[1]

	for _, o := range opts.extraOpts {
		if strings.HasPrefix(o, "region=") {
			opts.region = strings.TrimPrefix(o, "region=")
		}
	}

	return opts, nil
}

func run(opts options, log *logrus.Logger) error {
	target := mounttarget.Parse(opts.device)
	if target.Bucket == "" {
		return fmt.Errorf("device %q names no bucket", opts.device)
	}

	ctx := context.Background()
	client, err := s3client.New(ctx, opts.region)
	if err != nil {
		return fmt.Errorf("failed to build S3 client: %w", err)
	}

	rawFS := fsys.New(client, target, log)

	mountOpts := append([]string{
		fmt.Sprintf("fsname=%s", target.Bucket),
		"subtype=s3wofs",
	}, opts.extraOpts...)

	server, err := fuse.NewServer(rawFS, opts.mountpoint, &fuse.MountOptions{
		Options: mountOpts,
		Debug:   opts.verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to mount %s at %s: %w", opts.device, opts.mountpoint, err)
	}

	log.WithFields(logrus.Fields{
		"bucket":     target.Bucket,
		"prefix":     target.Prefix,
		"mountpoint": opts.mountpoint,
	}).Info("mounted")

	server.Serve()
	rawFS.Shutdown(ctx)
	return nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `mount.s3wofs - mount an S3 bucket as a write-only FUSE filesystem

USAGE:
    mount.s3wofs <device> <mountpoint> [options]

    <device>      bucket, or bucket:prefix

OPTIONS (forwarded from mount(8)):
    --foreground   do not detach
    -s             tolerate sloppy options
    -f             fake mount (accepted; the mount is still performed)
    -n             do not update /etc/mtab
    -v             verbose logging
    -t <type>      filesystem type (passthrough, informational)
    -o <opts>      comma-separated mount options, e.g. -o region=eu-central-1

EXAMPLES:
    mount.s3wofs my-bucket /mnt/uploads
    mount.s3wofs my-bucket:incoming/photos /mnt/uploads -o region=eu-central-1 -v
`)
}
