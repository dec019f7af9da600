package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractObject(t *testing.T) {
	out, ok := ExtractObject(`noise {"a":{"b":"}"}} trailing`)
	assert.True(t, ok)
	assert.Equal(t, `{"a":{"b":"}"}}`, out)

	_, ok = ExtractObject(`{"unterminated":`)
	assert.False(t, ok)

	_, ok = ExtractObject("   ")
	assert.False(t, ok)
}

func TestExtractNextData(t *testing.T) {
	page := `<html><script id="__NEXT_DATA__" type="application/json">{"props":{"x":1}}</script></html>`
	out, ok := ExtractNextData(page)
	assert.True(t, ok)
	assert.Equal(t, `{"props":{"x":1}}`, out)

	out, ok = ExtractNextData(` {"props":{}} `)
	assert.True(t, ok)
	assert.Equal(t, `{"props":{}}`, out)

	_, ok = ExtractNextData("<html></html>")
	assert.False(t, ok)
}
