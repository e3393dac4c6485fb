// Package importmap loads the import map written by the dependency install
// step and resolves bare specifiers against it.
package importmap

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/toastdotdev/toast/internal/errors"
)

// DefaultPath is where the install step writes the map, relative to the output directory.
const DefaultPath = "web_modules/import-map.json"

// ImportMap is an immutable specifier -> URL mapping.
type ImportMap struct {
	imports  map[string]string
	prefixes []string // keys ending in "/", longest first
	digest   string
}

type document struct {
	Imports map[string]string `json:"imports"`
}

// New builds an import map from an already-decoded mapping.
func New(imports map[string]string) *ImportMap {
	m := &ImportMap{imports: make(map[string]string, len(imports))}
	for k, v := range imports {
		m.imports[k] = v
		if strings.HasSuffix(k, "/") {
			m.prefixes = append(m.prefixes, k)
		}
	}
	sort.Slice(m.prefixes, func(i, j int) bool {
		if len(m.prefixes[i]) != len(m.prefixes[j]) {
			return len(m.prefixes[i]) > len(m.prefixes[j])
		}
		return m.prefixes[i] < m.prefixes[j]
	})
	m.digest = computeDigest(m.imports)
	return m
}

// Parse decodes an import map document. Duplicate keys resolve last-wins.
func Parse(data []byte) (*ImportMap, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.NewParseError(
			errors.ErrCodeImportMapInvalid,
			fmt.Sprintf("failed to parse import map from content `%s`", truncate(string(data), 512)),
			err,
		)
	}
	return New(doc.Imports), nil
}

// Load reads and parses the import map at path.
func Load(path string) (*ImportMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeImportMapMissing,
			fmt.Sprintf("failed to read `import-map.json` from `%s`; the dependency install step should create it, it either did not run or failed to write the file", path),
			path)
	}
	m, err := Parse(data)
	if err != nil {
		var te *errors.Error
		if stderrors.As(err, &te) {
			te.FilePath = path
		}
		return nil, err
	}
	return m, nil
}

// Resolve maps a specifier to its target. Exact entries win over prefix
// entries; among prefixes the longest match wins.
func (m *ImportMap) Resolve(specifier string) (string, bool) {
	if m == nil {
		return "", false
	}
	if target, ok := m.imports[specifier]; ok {
		return target, true
	}
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(specifier, prefix) {
			target := m.imports[prefix]
			if !strings.HasSuffix(target, "/") {
				// a prefix entry must map to a prefix target
				continue
			}
			return target + strings.TrimPrefix(specifier, prefix), true
		}
	}
	return "", false
}

// Len returns the number of entries.
func (m *ImportMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.imports)
}

// Specifiers returns the mapped specifiers sorted.
func (m *ImportMap) Specifiers() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.imports))
	for k := range m.imports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Digest is a stable hash of the mapping, used as the map's version.
func (m *ImportMap) Digest() string {
	if m == nil {
		return computeDigest(nil)
	}
	return m.digest
}

// MarshalJSON writes the map back out as an import map document.
func (m *ImportMap) MarshalJSON() ([]byte, error) {
	imports := map[string]string{}
	if m != nil {
		imports = m.imports
	}
	return json.Marshal(document{Imports: imports})
}

func computeDigest(imports map[string]string) string {
	keys := make([]string, 0, len(imports))
	for k := range imports {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(imports[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...[TRUNCATED]"
}
