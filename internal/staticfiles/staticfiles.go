// Package staticfiles holds the two fixed, read-only help files that
// appear in the mount root to tell users uploaded content cannot be read
// back (spec §4.3).
package staticfiles

import (
	_ "embed"
)

// Reserved inode numbers for the two help files (spec §3).
const (
	EnglishIno = 2
	GermanIno  = 3
)

//go:embed assets/uploaded-en.txt
var englishContent []byte

//go:embed assets/uploaded-de.txt
var germanContent []byte

// File is one embedded help file: a fixed inode, name, and body.
type File struct {
	Ino     uint64
	Name    string
	Content []byte
}

// All is the root directory's static-file table, in the order readdir
// should emit them.
var All = []File{
	{Ino: EnglishIno, Name: "_Uploaded files will not be visible.txt", Content: englishContent},
	{Ino: GermanIno, Name: "_Hochgeladene Dateien werden nicht sichtbar sein.txt", Content: germanContent},
}

// ByIno looks up a help file by inode.
func ByIno(ino uint64) (File, bool) {
	for _, f := range All {
		if f.Ino == ino {
			return f, true
		}
	}
	return File{}, false
}

// ByName looks up a help file by its root-directory name.
func ByName(name string) (File, bool) {
	for _, f := range All {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}
