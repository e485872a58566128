package cli

import (
	"testing"

	"github.com/nebula-labs/nebula/internal/bundle"
)

func TestMatchesSearchByQuery(t *testing.T) {
	d := bundle.Descriptor{
		ID:          "fonts-latin",
		DisplayName: "Latin Fonts",
		Notes:       "Adds extended glyph coverage",
	}

	tests := []struct {
		name     string
		query    string
		expected bool
	}{
		{"empty query matches all", "", true},
		{"exact id match", "fonts-latin", true},
		{"partial id match", "fonts", true},
		{"case insensitive name", "LATIN FONTS", true},
		{"notes match", "glyph", true},
		{"no match", "nonexistent-thing", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesSearch(d, tt.query, "", "")
			if got != tt.expected {
				t.Errorf("matchesSearch(query=%q) = %v, want %v", tt.query, got, tt.expected)
			}
		})
	}
}

func TestMatchesSearchByMetadata(t *testing.T) {
	d := bundle.Descriptor{
		ID:       "theme-dark",
		Metadata: map[string]string{"platform": "ios"},
	}

	tests := []struct {
		name     string
		key      string
		value    string
		expected bool
	}{
		{"no filter", "", "", true},
		{"matching value", "platform", "ios", true},
		{"different value", "platform", "android", false},
		{"missing key", "region", "eu", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesSearch(d, "", tt.key, tt.value)
			if got != tt.expected {
				t.Errorf("matchesSearch(%s=%s) = %v, want %v", tt.key, tt.value, got, tt.expected)
			}
		})
	}
}

func TestShortHash(t *testing.T) {
	if got := shortHash("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("shortHash = %q, want %q", got, "0123456789ab")
	}
	if got := shortHash("abc"); got != "abc" {
		t.Errorf("shortHash = %q, want %q", got, "abc")
	}
}
