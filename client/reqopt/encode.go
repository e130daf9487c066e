package reqopt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/url"
	"os"
	"reflect"
	"strconv"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// File is a multipart field value uploaded as a file. Either Path or
// Content must be set; Name defaults to the base name of Path.
type File struct {
	Path        string
	Name        string
	ContentType string
	Content     io.Reader

	data []byte
}

// Open returns the upload content. A buffered File yields a fresh reader
// on every call; otherwise Content is returned, or the file at Path is
// opened.
func (f File) Open() (io.ReadCloser, error) {
	switch {
	case f.data != nil:
		return io.NopCloser(bytes.NewReader(f.data)), nil
	case f.Content != nil:
		return io.NopCloser(f.Content), nil
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}

	return file, nil
}

// Buffer reads every reader held by a multipart field map into memory and
// returns a copy of the map, so the same body can be sent by several
// requests. Other bodies are returned unchanged.
func Buffer(body any) (any, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return body, nil
	}

	var out map[string]any
	for k, v := range m {
		f, ok := AsFile(k, v)
		if !ok || f.Content == nil {
			continue
		}

		data, err := io.ReadAll(f.Content)
		if err != nil {
			return nil, invalid("body."+k, nil, fmt.Errorf("%w: reading upload: %w", ErrInvalidValue, err))
		}

		if out == nil {
			out = maps.Clone(m)
		}
		f.Content = nil
		f.data = data
		out[k] = f
	}

	if out == nil {
		return body, nil
	}

	return out, nil
}

// AsFile reports whether a multipart field value is uploaded as a file.
func AsFile(name string, v any) (File, bool) {
	switch t := v.(type) {
	case File:
		return t, true
	case *File:
		if t != nil {
			return *t, true
		}
	case io.Reader:
		return File{Name: name, Content: t}, true
	}

	return File{}, false
}

func (c *Config) encode(body any) error {
	if isEmpty(body) {
		return nil
	}

	switch c.Type {
	case JSON:
		b, err := encodeJSON(body)
		if err != nil {
			return invalid("body", nil, fmt.Errorf("%w: %w", ErrInvalidValue, err))
		}
		c.Body = b
		c.defaultHeader("content-type", contentTypeJSON)

	case Form, URLEncoded:
		s, err := encodeForm(body)
		if err != nil {
			return invalid("body", nil, fmt.Errorf("%w: %w", ErrInvalidValue, err))
		}
		c.Body = []byte(s)
		c.defaultHeader("content-type", contentTypeForm)

	case Multipart:
		fields, err := multipartFields(body)
		if err != nil {
			return err
		}
		c.Fields = fields

	default:
		return invalid("type", string(c.Type), ErrUnknownBodyType)
	}

	return nil
}

// defaultHeader sets key only when no layer set it: implied headers have
// the lowest precedence.
func (c *Config) defaultHeader(key, val string) {
	if _, ok := c.Headers[key]; !ok {
		c.Headers[key] = val
	}
}

func isEmpty(body any) bool {
	if body == nil {
		return true
	}

	v := reflect.ValueOf(body)
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}

	return false
}

func encodeJSON(body any) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return bytes.Clone(b), nil
	case json.RawMessage:
		return bytes.Clone(b), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// encodeForm produces application/x-www-form-urlencoded text. Nested
// maps and slices become bracketed keys (a[b]=c, a[0]=x). Keys are
// sorted. Strings and byte slices are taken as already encoded.
func encodeForm(body any) (string, error) {
	switch b := body.(type) {
	case string:
		return b, nil
	case []byte:
		return string(b), nil
	case url.Values:
		return b.Encode(), nil
	case map[string][]string:
		return url.Values(b).Encode(), nil
	case map[string]string:
		vals := make(url.Values, len(b))
		for k, v := range b {
			vals.Set(k, v)
		}
		return vals.Encode(), nil
	}

	generic, err := toGeneric(body)
	if err != nil {
		return "", err
	}

	m, ok := generic.(map[string]any)
	if !ok {
		return "", fmt.Errorf("cannot form-encode %T", body)
	}

	vals := make(url.Values)
	for k, v := range m {
		flatten(vals, k, v)
	}

	return vals.Encode(), nil
}

// toGeneric turns arbitrary values (structs, typed maps) into the
// map[string]any / []any / scalar tree encoding/json would produce.
func toGeneric(body any) (any, error) {
	if m, ok := body.(map[string]any); ok {
		return m, nil
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()

	var out any
	if err := d.Decode(&out); err != nil {
		return nil, err
	}

	return out, nil
}

func flatten(vals url.Values, key string, v any) {
	switch t := v.(type) {
	case nil:
	case map[string]any:
		for k, inner := range t {
			flatten(vals, key+"["+k+"]", inner)
		}
	case []any:
		for i, inner := range t {
			flatten(vals, key+"["+strconv.Itoa(i)+"]", inner)
		}
	case bool:
		if t {
			vals.Add(key, "1")
		} else {
			vals.Add(key, "0")
		}
	case string:
		vals.Add(key, t)
	case json.Number:
		vals.Add(key, t.String())
	case float64:
		vals.Add(key, strconv.FormatFloat(t, 'f', -1, 64))
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
			if generic, err := toGeneric(v); err == nil {
				flatten(vals, key, generic)
				return
			}
		}
		vals.Add(key, fmt.Sprint(v))
	}
}

func multipartFields(body any) (map[string]any, error) {
	switch b := body.(type) {
	case map[string]any:
		return maps.Clone(b), nil
	case map[string]string:
		out := make(map[string]any, len(b))
		for k, v := range b {
			out[k] = v
		}
		return out, nil
	case url.Values:
		out := make(map[string]any, len(b))
		for k, v := range b {
			out[k] = append([]string(nil), v...)
		}
		return out, nil
	}

	return nil, invalid("body", fmt.Sprintf("%T", body), ErrMultipartFields)
}
