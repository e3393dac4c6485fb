// Package routes models the per-route data registered by a data-sourcing
// script before a build starts.
package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/toastdotdev/toast/internal/errors"
)

// Mode tells the renderer how to interpret a ModuleSpec value.
type Mode string

const (
	// ModeNoModule means the route has no module of that kind.
	ModeNoModule Mode = "no-module"
	// ModeFilepath points at a module on disk.
	ModeFilepath Mode = "filepath"
	// ModeSource carries the module source inline.
	ModeSource Mode = "source"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeNoModule, ModeFilepath, ModeSource:
		return true
	default:
		return false
	}
}

// ModuleSpec names the page component or wrapper of a route.
type ModuleSpec struct {
	Mode  Mode   `json:"mode"`
	Value string `json:"value,omitempty"`
}

// Record is the data registered for one slug.
type Record struct {
	Slug      string          `json:"slug"`
	Component *ModuleSpec     `json:"component,omitempty"`
	Wrapper   *ModuleSpec     `json:"wrapper,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Parse decodes a caller payload. Unknown fields are ignored.
func Parse(payload []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, errors.ErrCodeInvalidRouteData,
			"route data is not a valid JSON object")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Validate checks the fields a record cannot do without.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Slug) == "" {
		return errors.NewProtocolError(errors.ErrCodeInvalidRouteData, "route data has an empty slug")
	}
	for name, spec := range map[string]*ModuleSpec{"component": r.Component, "wrapper": r.Wrapper} {
		if spec == nil {
			continue
		}
		if !spec.Mode.Valid() {
			return errors.NewProtocolError(errors.ErrCodeInvalidRouteData,
				fmt.Sprintf("unknown %s mode %q", name, spec.Mode)).
				WithContext("slug", r.Slug)
		}
	}
	return nil
}

// Normalize puts the record into canonical form. Applying it twice has no
// further effect.
func (r *Record) Normalize() {
	r.Slug = NormalizeSlug(r.Slug)

	data := bytes.TrimSpace(r.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		r.Data = json.RawMessage("{}")
	} else {
		r.Data = json.RawMessage(data)
	}

	for _, spec := range []*ModuleSpec{r.Component, r.Wrapper} {
		if spec != nil && spec.Mode == ModeNoModule {
			spec.Value = ""
		}
	}
}

// NormalizeSlug returns the canonical URL path of slug: NFC, single slashes,
// one leading slash, and no surrounding whitespace or trailing slash.
func NormalizeSlug(slug string) string {
	core := strings.TrimFunc(norm.NFC.String(slug), func(r rune) bool {
		return r == '/' || unicode.IsSpace(r)
	})

	var b strings.Builder
	b.Grow(len(core) + 1)
	b.WriteByte('/')
	prevSlash := true
	for i := 0; i < len(core); i++ {
		c := core[i]
		if c == '/' && prevSlash {
			continue
		}
		prevSlash = c == '/'
		b.WriteByte(c)
	}
	return b.String()
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	out := *r
	if r.Component != nil {
		c := *r.Component
		out.Component = &c
	}
	if r.Wrapper != nil {
		w := *r.Wrapper
		out.Wrapper = &w
	}
	if r.Data != nil {
		out.Data = append(json.RawMessage(nil), r.Data...)
	}
	return &out
}
