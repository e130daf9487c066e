package reqopt

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// BodyType selects how a request body is serialized.
type BodyType string

const (
	JSON       BodyType = "json"
	Form       BodyType = "form"
	URLEncoded BodyType = "urlencoded"
	Multipart  BodyType = "multipart"
)

const (
	DefaultType         = Form
	DefaultMaxRedirects = 10
	DefaultTimeout      = 40 * time.Second
)

// Options is one layer of request configuration. Unset fields (nil
// pointers, empty maps, empty Type) leave lower layers untouched when
// layers are merged.
type Options struct {
	Type            BodyType          `mapstructure:"type"`
	FollowRedirects *bool             `mapstructure:"followRedirects"`
	MaxRedirects    *int              `mapstructure:"maxRedirects"`
	IgnoreTLSErrors *bool             `mapstructure:"ignoreTlsErrors"`
	Timeout         *time.Duration    `mapstructure:"timeout"`
	Auth            *string           `mapstructure:"auth"`
	Headers         map[string]string `mapstructure:"headers"`

	// Overrides are low-level transport settings applied after every
	// other layer. See TransportOverrides for the accepted keys.
	Overrides map[string]any `mapstructure:"transportOverrides"`
}

// Defaults returns the built-in bottom layer.
func Defaults() Options {
	return Options{
		Type:            DefaultType,
		FollowRedirects: ptr(true),
		MaxRedirects:    ptr(DefaultMaxRedirects),
		IgnoreTLSErrors: ptr(false),
		Timeout:         ptr(DefaultTimeout),
	}
}

// Merge returns o overlaid by each higher layer in turn. Scalars are
// replaced whole; Headers and Overrides are merged key by key with the
// higher layer winning. Header names are lowercased. The result never
// shares maps with its inputs.
func (o Options) Merge(higher ...Options) Options {
	out := o.clone()

	for _, h := range higher {
		if h.Type != "" {
			out.Type = h.Type
		}
		if h.FollowRedirects != nil {
			out.FollowRedirects = ptr(*h.FollowRedirects)
		}
		if h.MaxRedirects != nil {
			out.MaxRedirects = ptr(*h.MaxRedirects)
		}
		if h.IgnoreTLSErrors != nil {
			out.IgnoreTLSErrors = ptr(*h.IgnoreTLSErrors)
		}
		if h.Timeout != nil {
			out.Timeout = ptr(*h.Timeout)
		}
		if h.Auth != nil {
			out.Auth = ptr(*h.Auth)
		}

		for k, v := range h.Headers {
			if out.Headers == nil {
				out.Headers = make(map[string]string, len(h.Headers))
			}
			out.Headers[strings.ToLower(k)] = v
		}

		for k, v := range h.Overrides {
			if out.Overrides == nil {
				out.Overrides = make(map[string]any, len(h.Overrides))
			}
			out.Overrides[k] = v
		}
	}

	return out
}

func (o Options) clone() Options {
	out := o
	out.Headers = nil
	out.Overrides = nil

	if o.FollowRedirects != nil {
		out.FollowRedirects = ptr(*o.FollowRedirects)
	}
	if o.MaxRedirects != nil {
		out.MaxRedirects = ptr(*o.MaxRedirects)
	}
	if o.IgnoreTLSErrors != nil {
		out.IgnoreTLSErrors = ptr(*o.IgnoreTLSErrors)
	}
	if o.Timeout != nil {
		out.Timeout = ptr(*o.Timeout)
	}
	if o.Auth != nil {
		out.Auth = ptr(*o.Auth)
	}

	if len(o.Headers) > 0 {
		out.Headers = make(map[string]string, len(o.Headers))
		for k, v := range o.Headers {
			out.Headers[strings.ToLower(k)] = v
		}
	}
	if len(o.Overrides) > 0 {
		out.Overrides = maps.Clone(o.Overrides)
	}

	return out
}

// Option is a functional option producing one Options layer.
type Option func(*Options) error

// Build applies opts to an empty layer.
func Build(opts ...Option) (Options, error) {
	var o Options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return Options{}, err
		}
	}

	return o, nil
}

// WithType sets the body encoding. Unknown types are only rejected once
// a body actually needs encoding.
func WithType(t BodyType) Option {
	return func(o *Options) error {
		o.Type = t
		return nil
	}
}

// WithHeader sets a single request header.
func WithHeader(key, val string) Option {
	return func(o *Options) error {
		if strings.TrimSpace(key) == "" {
			return invalid("headers", key, fmt.Errorf("%w: empty header name", ErrInvalidValue))
		}
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		o.Headers[strings.ToLower(key)] = val
		return nil
	}
}

// WithHeaders sets several request headers.
func WithHeaders(headers map[string]string) Option {
	return func(o *Options) error {
		for k, v := range headers {
			if err := WithHeader(k, v)(o); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithFollowRedirects toggles redirect following.
func WithFollowRedirects(follow bool) Option {
	return func(o *Options) error {
		o.FollowRedirects = &follow
		return nil
	}
}

// WithMaxRedirects caps the number of redirects followed.
func WithMaxRedirects(n int) Option {
	return func(o *Options) error {
		if n < 0 {
			return invalid("maxRedirects", n, fmt.Errorf("%w: must not be negative", ErrInvalidValue))
		}
		o.MaxRedirects = &n
		return nil
	}
}

// WithIgnoreTLSErrors disables certificate and hostname verification.
func WithIgnoreTLSErrors(ignore bool) Option {
	return func(o *Options) error {
		o.IgnoreTLSErrors = &ignore
		return nil
	}
}

// WithTimeout sets the whole-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return invalid("timeout", d, fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		o.Timeout = &d
		return nil
	}
}

// WithAuth sets basic auth credentials as "user:pass".
func WithAuth(credentials string) Option {
	return func(o *Options) error {
		o.Auth = &credentials
		return nil
	}
}

// WithTransportOverride sets a single low-level transport key.
func WithTransportOverride(key string, val any) Option {
	return func(o *Options) error {
		if key == "" {
			return invalid("transportOverrides", key, fmt.Errorf("%w: empty key", ErrInvalidValue))
		}
		if o.Overrides == nil {
			o.Overrides = make(map[string]any)
		}
		o.Overrides[key] = val
		return nil
	}
}

// WithLayer merges a whole Options value into the layer being built.
func WithLayer(layer Options) Option {
	return func(o *Options) error {
		*o = o.Merge(layer)
		return nil
	}
}

func ptr[T any](v T) *T {
	return &v
}
