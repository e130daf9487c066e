// Package fetch exposes the client builder.
package fetch

import (
	"fmt"

	"github.com/adamwoolhether/fetch/client"
	"github.com/adamwoolhether/fetch/config"
)

// New instantiates a new *client.Client with the provided options.
// If not specified, a clone of http.DefaultTransport is used.
func New(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}

// NewFromFile loads settings from the config file at path and builds a
// client from them. opts are applied afterwards and take precedence.
func NewFromFile(path string, opts ...client.Option) (*client.Client, error) {
	s, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	return client.Build(append([]client.Option{client.WithSettings(s)}, opts...)...)
}
