package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.yaml.in/yaml/v3"

	"github.com/nebula-labs/nebula/internal/bundle"
)

// SupportedFormat is the semver constraint a catalog's formatVersion must
// satisfy.
const SupportedFormat = "^1"

// ErrInvalidCatalog is returned for catalog documents that fail schema or
// format version checks.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Client fetches catalog snapshots and payloads from an origin.
type Client interface {
	// FetchCatalog returns the full catalog snapshot.
	FetchCatalog(ctx context.Context) (*Catalog, error)
	// FetchPayload returns the bytes addressed by locator.
	FetchPayload(ctx context.Context, locator string) ([]byte, error)
}

// Origin identifies the bucket a catalog was published from.
type Origin struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Catalog is one snapshot of every bundle the origin offers.
type Catalog struct {
	FormatVersion string              `json:"formatVersion"`
	Origin        Origin              `json:"origin"`
	Bundles       []bundle.Descriptor `json:"bundles"`
}

// Decode parses a JSON or YAML catalog document, validates it against the
// catalog schema, and checks its format version.
func Decode(data []byte) (*Catalog, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing document: %v", ErrInvalidCatalog, err)
	}
	jsonData, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: converting to JSON: %v", ErrInvalidCatalog, err)
	}

	result, err := Validate(jsonData)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, &ValidationError{Issues: result.Issues}
	}

	var c Catalog
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := CheckFormat(c.FormatVersion); err != nil {
		return nil, err
	}
	if c.Bundles == nil {
		c.Bundles = []bundle.Descriptor{}
	}
	return &c, nil
}

// CheckFormat reports whether version satisfies SupportedFormat. A leading
// "v" is tolerated.
func CheckFormat(version string) error {
	v, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return fmt.Errorf("%w: parsing format version %q: %v", ErrInvalidCatalog, version, err)
	}
	c, err := semver.NewConstraint(SupportedFormat)
	if err != nil {
		return fmt.Errorf("parsing supported format constraint: %w", err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: format version %s is not supported (want %s)", ErrInvalidCatalog, version, SupportedFormat)
	}
	return nil
}

// normalizeYAML converts YAML-decoded values into types encoding/json accepts.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, v := range val {
			m[k] = normalizeYAML(v)
		}
		return m
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, v := range val {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case []interface{}:
		a := make([]interface{}, len(val))
		for i, v := range val {
			a[i] = normalizeYAML(v)
		}
		return a
	default:
		return val
	}
}
