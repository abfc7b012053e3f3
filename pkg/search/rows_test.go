package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeMetadata(t *testing.T) {
	out := decodeMetadata([]byte(`{"team":"infra","priority":3,"archived":false,"nested":{"k":1}}`))
	assert.Equal(t, map[string]string{
		"team":     "infra",
		"priority": "3",
		"archived": "false",
	}, out)

	assert.Nil(t, decodeMetadata(nil))
	assert.Nil(t, decodeMetadata([]byte(`{}`)))
	assert.Nil(t, decodeMetadata([]byte(`not json`)))
}

func TestSplitFragments(t *testing.T) {
	fragments := splitFragments("first hit ... second hit ...  ")
	assert.Equal(t, []string{"first hit", "second hit"}, fragments)

	assert.Nil(t, splitFragments(""))
	assert.Equal(t, []string{"single"}, splitFragments("single"))
}

func TestMatchedFields(t *testing.T) {
	r := SearchResult{Title: "Cache notes", Excerpt: "mostly about redis"}

	assert.Equal(t, []string{"title", "content"}, matchedFields(r, "cache AND redis"))
	assert.Equal(t, []string{"title"}, matchedFields(r, "cache"))
	assert.Equal(t, []string{"content"}, matchedFields(r, "redis"))

	// The store matched the row even if neither projection shows why.
	assert.Equal(t, []string{"content"}, matchedFields(r, "postgres"))

	assert.Nil(t, matchedFields(r, "   "))
}
