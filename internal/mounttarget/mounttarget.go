// Package mounttarget parses the device string passed to the mount
// helper (bucket[:prefix]) into a bucket name and a normalized key
// prefix.
package mounttarget

import "strings"

// MountTarget is the parsed form of a device string of the form
// "bucket" or "bucket:prefix".
//
// Example:
//
//	mt := mounttarget.Parse("my-bucket:/multi//prefix/")
//	mt.Bucket // "my-bucket"
//	mt.Prefix // "multi//prefix"
type MountTarget struct {
	Bucket string
	Prefix string
}

// Parse splits device on the first ':' — the bucket may not contain one —
// and trims leading/trailing '/' from the remainder. Interior "//"
// sequences in the prefix are preserved as-is. A device with no ':', or
// whose prefix is empty after trimming, has an empty Prefix.
func Parse(device string) MountTarget {
	bucket, rest, hasColon := strings.Cut(device, ":")
	if !hasColon {
		return MountTarget{Bucket: bucket}
	}
	prefix := strings.Trim(rest, "/")
	return MountTarget{Bucket: bucket, Prefix: prefix}
}

// HasPrefix reports whether the mount was configured with a non-empty
// prefix.
func (mt MountTarget) HasPrefix() bool {
	return mt.Prefix != ""
}

// Key composes the object-store key for a file named name created at the
// mount root: prefix + "/" + name when a prefix is set, else the bare
// name.
func (mt MountTarget) Key(name string) string {
	if !mt.HasPrefix() {
		return name
	}
	return mt.Prefix + "/" + name
}
