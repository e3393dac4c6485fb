//go:build property

package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRelativePathProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	segments := gen.SliceOfN(4, gen.Identifier())

	properties.Property("paths below the project are accepted", prop.ForAll(
		func(parts []string) bool {
			return validateRelativePath(filepath.Join(parts...)) == nil
		},
		segments,
	))

	properties.Property("paths escaping the project are rejected", prop.ForAll(
		func(parts []string) bool {
			return validateRelativePath(filepath.Join(append([]string{".."}, parts...)...)) != nil
		},
		segments,
	))

	properties.Property("absolute paths are rejected", prop.ForAll(
		func(parts []string) bool {
			return validateRelativePath(string(filepath.Separator)+filepath.Join(parts...)) != nil
		},
		segments,
	))

	properties.Property("comma lists split into trimmed items", prop.ForAll(
		func(parts []string) bool {
			got := splitList([]string{strings.Join(parts, " , ")})
			if len(got) != len(parts) {
				return false
			}
			for i := range parts {
				if got[i] != parts[i] {
					return false
				}
			}
			return true
		},
		segments,
	))

	properties.TestingRun(t)
}
