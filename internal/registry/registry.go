// Package registry holds the source modules discovered for a build, keyed by
// their project-relative ID.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/toastdotdev/toast/internal/errors"
)

// Registry manages all registered sources
type Registry struct {
	root    string
	sources map[ID]*Source
	mutex   sync.RWMutex
}

// NewRegistry creates a registry whose IDs are relative to root.
func NewRegistry(root string) *Registry {
	return &Registry{
		root:    root,
		sources: make(map[ID]*Source),
	}
}

// Root returns the project root IDs are derived from.
func (r *Registry) Root() string {
	return r.root
}

// Register reads the file at path and stores it under its derived ID,
// replacing any previous record for the same path.
func (r *Registry) Register(path string) (ID, error) {
	id, err := DeriveID(r.root, path)
	if err != nil {
		return "", errors.WrapIO(err, errors.ErrCodeReadFailed, "cannot derive source id", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		code := errors.ErrCodeReadFailed
		if os.IsNotExist(err) {
			code = errors.ErrCodeFileNotFound
		}
		return "", errors.WrapIO(err, code, "failed to read source module", path).WithSource(string(id))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	r.Set(id, &Source{
		ID:      id,
		Kind:    KindFile,
		Path:    abs,
		Content: content,
		Hash:    ContentHash(content),
	})
	return id, nil
}

// Set stores a source under id.
func (r *Registry) Set(id ID, source *Source) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sources[id] = source
}

// Get retrieves a source by ID
func (r *Registry) Get(id ID) (*Source, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	source, exists := r.sources[id]
	return source, exists
}

// Has reports whether id is registered.
func (r *Registry) Has(id ID) bool {
	_, ok := r.Get(id)
	return ok
}

// Remove drops a source from the registry
func (r *Registry) Remove(id ID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.sources, id)
}

// IDs returns every registered ID in lexicographic order.
func (r *Registry) IDs() []ID {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]ID, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.sources)
}

// Digest hashes the set of registered IDs. Relative specifier resolution
// depends on which modules exist, so compiled artifacts are keyed on it.
func (r *Registry) Digest() string {
	h := sha256.New()
	for _, id := range r.IDs() {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
