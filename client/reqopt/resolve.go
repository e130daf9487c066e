package reqopt

import (
	"strings"
	"time"
)

// Config is a fully resolved request configuration, ready to be handed
// to the transport.
type Config struct {
	Method          string        `mapstructure:"method" validate:"required"`
	Type            BodyType      `mapstructure:"type"`
	FollowRedirects bool          `mapstructure:"followRedirects"`
	MaxRedirects    int           `mapstructure:"maxRedirects" validate:"gte=0"`
	IgnoreTLSErrors bool          `mapstructure:"ignoreTlsErrors"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Auth            string        `mapstructure:"auth"`

	// Headers holds the final lowercase request headers, including any
	// content type implied by the body encoding.
	Headers map[string]string `mapstructure:"headers"`

	// Body is the encoded payload, nil when no body must be sent.
	Body []byte `mapstructure:"-"`

	// Fields is the untouched multipart field map; the transport builds
	// the multipart payload from it. Nil unless Type is Multipart.
	Fields map[string]any `mapstructure:"-"`

	Transport TransportOverrides `mapstructure:"transportOverrides"`
}

// BasicAuth splits Auth on its first colon.
func (c *Config) BasicAuth() (user, pass string, ok bool) {
	if c.Auth == "" {
		return "", "", false
	}

	user, pass, _ = strings.Cut(c.Auth, ":")
	return user, pass, true
}

// Resolve merges the built-in defaults with layers, lowest precedence
// first, applies transport overrides on top, validates the outcome and
// encodes body. Callers pass client defaults, per-call options and
// per-request options in that order.
//
// The returned error is always an *InvalidOptionError.
func Resolve(method string, body any, layers ...Options) (*Config, error) {
	merged := Defaults().Merge(layers...)

	over, err := decodeOverrides(merged.Overrides)
	if err != nil {
		return nil, err
	}

	cfg := Config{
		Method:          strings.TrimSpace(method),
		Type:            merged.Type,
		FollowRedirects: deref(merged.FollowRedirects),
		MaxRedirects:    deref(merged.MaxRedirects),
		IgnoreTLSErrors: deref(merged.IgnoreTLSErrors),
		Timeout:         deref(merged.Timeout),
		Auth:            deref(merged.Auth),
		Headers:         merged.Headers,
		Transport:       over,
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	if over.Timeout != nil {
		cfg.Timeout = *over.Timeout
	}
	if over.FollowRedirects != nil {
		cfg.FollowRedirects = *over.FollowRedirects
	}
	if over.MaxRedirects != nil {
		cfg.MaxRedirects = *over.MaxRedirects
	}
	if over.IgnoreTLSErrors != nil {
		cfg.IgnoreTLSErrors = *over.IgnoreTLSErrors
	}
	if over.Auth != nil {
		cfg.Auth = *over.Auth
	}

	if err := check(cfg); err != nil {
		return nil, err
	}

	if err := cfg.encode(body); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}

	return *p
}
