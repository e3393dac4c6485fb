package compiler

import (
	"path"
	"strings"

	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/registry"
)

// SpecifierKind classifies an import specifier.
type SpecifierKind int

const (
	// SpecifierBare is a package name such as "preact" or "lodash/fp".
	SpecifierBare SpecifierKind = iota
	// SpecifierRelative starts with "./" or "../".
	SpecifierRelative
	// SpecifierAbsolute is a root-relative URL path such as "/web_modules/x.js".
	SpecifierAbsolute
	// SpecifierURL carries a scheme ("https:", "data:") or is protocol-relative.
	SpecifierURL
)

// String returns the string representation of the SpecifierKind
func (k SpecifierKind) String() string {
	switch k {
	case SpecifierBare:
		return "bare"
	case SpecifierRelative:
		return "relative"
	case SpecifierAbsolute:
		return "absolute"
	case SpecifierURL:
		return "url"
	default:
		return "unknown"
	}
}

// Classify determines the kind of a specifier. "node:" builtins count as
// bare: they mean nothing to a browser without an import map entry.
func Classify(specifier string) SpecifierKind {
	switch {
	case specifier == "." || specifier == "..":
		return SpecifierRelative
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"):
		return SpecifierRelative
	case strings.HasPrefix(specifier, "//"):
		return SpecifierURL
	case strings.HasPrefix(specifier, "/"):
		return SpecifierAbsolute
	case hasScheme(specifier) && !strings.HasPrefix(specifier, "node:"):
		return SpecifierURL
	default:
		return SpecifierBare
	}
}

func hasScheme(s string) bool {
	colon := strings.IndexByte(s, ':')
	if colon < 1 {
		return false
	}
	for i := 0; i < colon; i++ {
		c := s[i]
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !(c >= '0' && c <= '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

// Rewrite applies the per-target specifier policy for one import in importer.
//
// Relative imports of project modules become explicit relative links to the
// target's artifact, valid in both output trees since both mirror source IDs.
// Bare specifiers go through the import map for the browser and stay as they
// are for the server, whose runtime resolves packages itself.
func (c *Compiler) Rewrite(importer registry.ID, specifier string, target Target) (string, error) {
	switch Classify(specifier) {
	case SpecifierRelative:
		if id, ok := c.resolveRelative(importer, specifier); ok {
			return relativeLink(importer, id), nil
		}
		if target == TargetServer {
			return specifier, nil
		}
		if mapped, ok := c.importMap.Resolve(specifier); ok {
			return mapped, nil
		}
		return "", errors.NewResolveError(string(importer), specifier)

	case SpecifierAbsolute, SpecifierURL:
		return specifier, nil

	default:
		if target == TargetServer {
			return specifier, nil
		}
		if mapped, ok := c.importMap.Resolve(specifier); ok {
			return mapped, nil
		}
		return "", errors.NewResolveError(string(importer), specifier)
	}
}

// resolveRelative finds the registered module a relative specifier points at,
// completing a missing extension or directory index.
func (c *Compiler) resolveRelative(importer registry.ID, specifier string) (registry.ID, bool) {
	if c.modules == nil {
		return "", false
	}
	joined := path.Join(importer.Dir(), specifier)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", false
	}

	var candidates []string
	if !strings.HasSuffix(specifier, "/") {
		candidates = append(candidates, joined)
		for _, ext := range c.extensions {
			candidates = append(candidates, joined+ext)
		}
	}
	for _, ext := range c.extensions {
		candidates = append(candidates, path.Join(joined, "index"+ext))
	}

	for _, candidate := range candidates {
		if c.modules.Has(registry.ID(candidate)) {
			return registry.ID(candidate), true
		}
	}
	return "", false
}

// relativeLink returns the "./"-prefixed relative path from the directory of
// from to to.
func relativeLink(from, to registry.ID) string {
	fromDir := splitPath(from.Dir())
	toParts := splitPath(string(to))

	common := 0
	for common < len(fromDir) && common < len(toParts)-1 && fromDir[common] == toParts[common] {
		common++
	}

	var b strings.Builder
	for i := common; i < len(fromDir); i++ {
		b.WriteString("../")
	}
	rel := b.String() + strings.Join(toParts[common:], "/")
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}

func splitPath(p string) []string {
	if p == "." || p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
