package jsonutil

import (
	"strings"
)

const nextDataMarker = `id="__NEXT_DATA__"`

// ExtractObject returns the first balanced JSON object found in raw.
func ExtractObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	return balanced(raw, '{', '}')
}

// ExtractNextData pulls the __NEXT_DATA__ payload out of a rendered page.
// Input that is already a bare object is returned as is.
func ExtractNextData(page string) (string, bool) {
	page = strings.TrimSpace(page)
	if strings.HasPrefix(page, "{") {
		return ExtractObject(page)
	}
	idx := strings.Index(page, nextDataMarker)
	if idx == -1 {
		return "", false
	}
	rest := page[idx+len(nextDataMarker):]
	gt := strings.Index(rest, ">")
	if gt == -1 {
		return "", false
	}
	return ExtractObject(rest[gt+1:])
}

func balanced(raw string, open, close byte) (string, bool) {
	start := strings.IndexByte(raw, open)
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
