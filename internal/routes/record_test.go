package routes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toastdotdev/toast/internal/errors"
)

func TestParse(t *testing.T) {
	rec, err := Parse([]byte(`{
		"slug": "/posts/hello",
		"component": {"mode": "source", "value": "export default () => null"},
		"data": {"title": "Hello"},
		"extra": true
	}`))
	require.NoError(t, err)

	assert.Equal(t, "/posts/hello", rec.Slug)
	require.NotNil(t, rec.Component)
	assert.Equal(t, ModeSource, rec.Component.Mode)
	assert.Nil(t, rec.Wrapper)
	assert.JSONEq(t, `{"title": "Hello"}`, string(rec.Data))
}

func TestParseRejects(t *testing.T) {
	testCases := map[string]string{
		"not json":     `{"slug": `,
		"array":        `[]`,
		"empty slug":   `{"slug": "  "}`,
		"missing slug": `{"data": {}}`,
		"bad mode":     `{"slug": "/a", "component": {"mode": "inline"}}`,
		"bad wrapper":  `{"slug": "/a", "wrapper": {"mode": ""}}`,
	}
	for name, payload := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.IsProtocolError(err))

			var te *errors.Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, errors.ErrCodeInvalidRouteData, te.Code)
		})
	}
}

func TestNormalizeSlug(t *testing.T) {
	testCases := map[string]string{
		"":                 "/",
		"/":                "/",
		"//":               "/",
		"posts":            "/posts",
		"/posts/":          "/posts",
		"  /posts//hello ": "/posts/hello",
		"a///b/c/":         "/a/b/c",
		"/caf\u00e9":       "/caf\u00e9",
		"cafe\u0301":       "/caf\u00e9",
		"/ spaced /":       "/spaced",
	}
	for in, expected := range testCases {
		assert.Equal(t, expected, NormalizeSlug(in), "%q", in)
	}
}

func TestNormalizeRecord(t *testing.T) {
	rec := &Record{
		Slug:      "blog/",
		Component: &ModuleSpec{Mode: ModeNoModule, Value: "ignored"},
		Wrapper:   &ModuleSpec{Mode: ModeFilepath, Value: "src/wrapper.js"},
	}
	rec.Normalize()

	assert.Equal(t, "/blog", rec.Slug)
	assert.Empty(t, rec.Component.Value)
	assert.Equal(t, "src/wrapper.js", rec.Wrapper.Value)
	assert.Equal(t, json.RawMessage("{}"), rec.Data)

	rec.Data = json.RawMessage(" null ")
	rec.Normalize()
	assert.Equal(t, json.RawMessage("{}"), rec.Data)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	rec := &Record{Slug: " //docs//intro/ ", Data: json.RawMessage(` {"a":1} `)}
	rec.Normalize()
	first := *rec
	rec.Normalize()

	assert.Equal(t, first.Slug, rec.Slug)
	assert.Equal(t, first.Data, rec.Data)
	assert.Equal(t, `{"a":1}`, string(rec.Data))
}

func TestCloneIsDeep(t *testing.T) {
	rec := &Record{
		Slug:      "/a",
		Component: &ModuleSpec{Mode: ModeFilepath, Value: "src/a.js"},
		Data:      json.RawMessage(`{"x":1}`),
	}
	clone := rec.Clone()
	clone.Component.Value = "src/b.js"
	clone.Data[0] = '['

	assert.Equal(t, "src/a.js", rec.Component.Value)
	assert.Equal(t, `{"x":1}`, string(rec.Data))
}
