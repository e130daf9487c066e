package reqopt

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// keys maps lowercased untyped keys, including legacy spellings, to
// their canonical name.
var keys = map[string]string{
	"type":               "type",
	"bodytype":           "type",
	"followredirects":    "followRedirects",
	"maxredirects":       "maxRedirects",
	"ignoretlserrors":    "ignoreTlsErrors",
	"ignoresslerrors":    "ignoreTlsErrors",
	"timeout":            "timeout",
	"auth":               "auth",
	"headers":            "headers",
	"transportoverrides": "transportOverrides",
	"curlopts":           "transportOverrides",
}

func canonicalKey(key string) string {
	if k, ok := keys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return k
	}

	return key
}

// Decode builds a layer from an untyped map, as found in config files
// and manifests. Durations given as bare numbers are seconds.
func Decode(m map[string]any) (Options, error) {
	normalized := make(map[string]any, len(m))
	for k, v := range m {
		normalized[canonicalKey(k)] = v
	}

	var o Options
	if err := decodeInto(normalized, &o, ""); err != nil {
		return Options{}, err
	}

	if err := checkLayer(o); err != nil {
		return Options{}, err
	}

	if len(o.Headers) > 0 {
		lowered := make(map[string]string, len(o.Headers))
		for k, v := range o.Headers {
			lowered[strings.ToLower(k)] = v
		}
		o.Headers = lowered
	}

	return o, nil
}

// Set replaces a single setting by its untyped key. Map settings
// (headers, transportOverrides) are replaced whole, not merged. A nil
// value clears the setting so lower layers apply again.
func (o *Options) Set(key string, value any) error {
	canon := canonicalKey(key)

	if value == nil {
		return o.clear(canon)
	}

	layer, err := Decode(map[string]any{canon: value})
	if err != nil {
		return err
	}

	switch canon {
	case "type":
		o.Type = layer.Type
	case "followRedirects":
		o.FollowRedirects = layer.FollowRedirects
	case "maxRedirects":
		o.MaxRedirects = layer.MaxRedirects
	case "ignoreTlsErrors":
		o.IgnoreTLSErrors = layer.IgnoreTLSErrors
	case "timeout":
		o.Timeout = layer.Timeout
	case "auth":
		o.Auth = layer.Auth
	case "headers":
		o.Headers = layer.Headers
	case "transportOverrides":
		o.Overrides = layer.Overrides
	}

	return nil
}

func (o *Options) clear(canon string) error {
	switch canon {
	case "type":
		o.Type = ""
	case "followRedirects":
		o.FollowRedirects = nil
	case "maxRedirects":
		o.MaxRedirects = nil
	case "ignoreTlsErrors":
		o.IgnoreTLSErrors = nil
	case "timeout":
		o.Timeout = nil
	case "auth":
		o.Auth = nil
	case "headers":
		o.Headers = nil
	case "transportOverrides":
		o.Overrides = nil
	default:
		return invalid(canon, nil, ErrUnknownOption)
	}

	return nil
}

func checkLayer(o Options) error {
	if o.MaxRedirects != nil && *o.MaxRedirects < 0 {
		return invalid("maxRedirects", *o.MaxRedirects, fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if o.Timeout != nil && *o.Timeout <= 0 {
		return invalid("timeout", *o.Timeout, fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	return nil
}

// TransportOverrides are the keys accepted in Options.Overrides. The
// first group shadows the modeled options and wins over every layer;
// the second group configures a dedicated transport for the request.
type TransportOverrides struct {
	Timeout         *time.Duration `mapstructure:"timeout"`
	FollowRedirects *bool          `mapstructure:"followRedirects"`
	MaxRedirects    *int           `mapstructure:"maxRedirects"`
	IgnoreTLSErrors *bool          `mapstructure:"ignoreTlsErrors"`
	Auth            *string        `mapstructure:"auth"`

	Proxy                  string        `mapstructure:"proxy" validate:"omitempty,url"`
	TLSServerName          string        `mapstructure:"tlsServerName"`
	DisableKeepAlives      bool          `mapstructure:"disableKeepAlives"`
	DisableCompression     bool          `mapstructure:"disableCompression"`
	ForceAttemptHTTP2      bool          `mapstructure:"forceAttemptHTTP2"`
	MaxIdleConnsPerHost    int           `mapstructure:"maxIdleConnsPerHost" validate:"gte=0"`
	MaxConnsPerHost        int           `mapstructure:"maxConnsPerHost" validate:"gte=0"`
	IdleConnTimeout        time.Duration `mapstructure:"idleConnTimeout" validate:"gte=0"`
	TLSHandshakeTimeout    time.Duration `mapstructure:"tlsHandshakeTimeout" validate:"gte=0"`
	ResponseHeaderTimeout  time.Duration `mapstructure:"responseHeaderTimeout" validate:"gte=0"`
	ExpectContinueTimeout  time.Duration `mapstructure:"expectContinueTimeout" validate:"gte=0"`
	MaxResponseHeaderBytes int64         `mapstructure:"maxResponseHeaderBytes" validate:"gte=0"`
}

// Dedicated reports whether any transport-level knob is set, meaning
// the request cannot run on the shared transport as is.
func (t TransportOverrides) Dedicated() bool {
	return t.Key() != TransportOverrides{}.Key()
}

// Key identifies the transport-level knobs so that equally configured
// requests can share a transport.
func (t TransportOverrides) Key() string {
	return fmt.Sprintf("%s|%s|%t|%t|%t|%d|%d|%s|%s|%s|%s|%d",
		t.Proxy, t.TLSServerName, t.DisableKeepAlives, t.DisableCompression, t.ForceAttemptHTTP2,
		t.MaxIdleConnsPerHost, t.MaxConnsPerHost, t.IdleConnTimeout, t.TLSHandshakeTimeout,
		t.ResponseHeaderTimeout, t.ExpectContinueTimeout, t.MaxResponseHeaderBytes,
	)
}

func decodeOverrides(m map[string]any) (TransportOverrides, error) {
	var t TransportOverrides
	if len(m) == 0 {
		return t, nil
	}

	if err := decodeInto(m, &t, "transportOverrides."); err != nil {
		return TransportOverrides{}, err
	}

	return t, nil
}

func decodeInto(input map[string]any, out any, prefix string) error {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(secondsHook),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("building decoder: %w", err)
	}

	if err := dec.Decode(input); err != nil {
		return invalid(strings.TrimSuffix(prefix, "."), nil, fmt.Errorf("%w: %w", ErrInvalidValue, err))
	}

	if len(md.Unused) > 0 {
		slices.Sort(md.Unused)
		return invalid(prefix+md.Unused[0], nil, ErrUnknownOption)
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsHook decodes numbers, and strings holding numbers, as seconds.
// Other strings go through time.ParseDuration.
func secondsHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType || from == durationType {
		return data, nil
	}

	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case float32:
		return time.Duration(float64(v) * float64(time.Second)), nil
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second)), nil
		}
		return time.ParseDuration(v)
	}

	return data, nil
}
