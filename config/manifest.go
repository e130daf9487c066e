package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/fetch/client/reqopt"
)

// Manifest describes a batch: one method and body sent to every
// request, with options layered batch-wide and per request.
type Manifest struct {
	Method   string
	Body     any
	Options  reqopt.Options
	Requests []Request
}

// Request is one target of a Manifest.
type Request struct {
	URL     string
	Options reqopt.Options
}

type rawManifest struct {
	Method   string         `yaml:"method"`
	Body     any            `yaml:"body"`
	Options  map[string]any `yaml:"options"`
	Requests []struct {
		URL     string         `yaml:"url"`
		Options map[string]any `yaml:"options"`
	} `yaml:"requests"`
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return ParseManifest(data)
}

// ParseManifest parses a YAML manifest. Option maps accept the same keys
// as reqopt.Decode.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	opts, err := reqopt.Decode(raw.Options)
	if err != nil {
		return nil, fmt.Errorf("manifest options: %w", err)
	}

	m := Manifest{
		Method:   raw.Method,
		Body:     raw.Body,
		Options:  opts,
		Requests: make([]Request, len(raw.Requests)),
	}

	for i, r := range raw.Requests {
		if r.URL == "" {
			return nil, fmt.Errorf("request %d: url is required", i)
		}

		opts, err := reqopt.Decode(r.Options)
		if err != nil {
			return nil, fmt.Errorf("request %d options: %w", i, err)
		}

		m.Requests[i] = Request{URL: r.URL, Options: opts}
	}

	return &m, nil
}
