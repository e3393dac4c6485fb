package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ID identifies a module by its slash-separated, project-relative path.
type ID string

// String returns the ID as a plain string.
func (id ID) String() string { return string(id) }

// Dir returns the directory part of the ID ("." for top-level modules).
func (id ID) Dir() string { return path.Dir(string(id)) }

// Kind distinguishes where a source's content came from.
type Kind int

const (
	// KindFile is a source read from disk during discovery.
	KindFile Kind = iota
	// KindVirtual is a source set programmatically with no backing file.
	KindVirtual
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// Source is one registered module. It is never mutated after being stored;
// re-registering a path replaces the record.
type Source struct {
	ID      ID
	Kind    Kind
	Path    string // absolute path for KindFile, empty otherwise
	Content []byte
	Hash    string
}

// NewVirtualSource builds a source with no file behind it.
func NewVirtualSource(id ID, content []byte) *Source {
	return &Source{
		ID:      id,
		Kind:    KindVirtual,
		Content: content,
		Hash:    ContentHash(content),
	}
}

// ContentHash returns the hex sha256 of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// DeriveID converts a file path into its ID relative to root.
func DeriveID(root, file string) (ID, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absFile, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absFile)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside project root %s", file, root)
	}
	return ID(rel), nil
}
