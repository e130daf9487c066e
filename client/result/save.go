package result

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
)

var (
	// ErrChecksumMismatch is returned by ToFile when WithChecksum is set
	// and the body does not hash to the expected value.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// SaveError wraps a sentinel error with additional detail.
type SaveError struct {
	Detail string
	Err    error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// SaveOption is a functional option for [Result.ToFile].
type SaveOption func(*saveOpts) error

type saveOpts struct {
	checksum *checksumVerifier
	perm     os.FileMode
}

// WithChecksum verifies the body against the hex-encoded expected digest
// before anything is written.
func WithChecksum(h hash.Hash, expected string) SaveOption {
	return func(opts *saveOpts) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		opts.checksum = &checksumVerifier{hash: h, expected: expected}
		return nil
	}
}

// WithPerm sets the mode of the written file. The default is 0o644.
func WithPerm(perm os.FileMode) SaveOption {
	return func(opts *saveOpts) error {
		opts.perm = perm
		return nil
	}
}

type checksumVerifier struct {
	hash     hash.Hash
	expected string
}

func (v *checksumVerifier) verify(data []byte) error {
	if v == nil {
		return nil
	}

	v.hash.Reset()
	v.hash.Write(data)

	actual := hex.EncodeToString(v.hash.Sum(nil))
	if actual != v.expected {
		return &SaveError{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("expected %s, got %s", v.expected, actual),
		}
	}

	return nil
}

// ToFile writes the body to path, replacing whatever is there.
// The body goes to a temp file in the same directory which is renamed
// over path on success, so readers never observe a partial file or
// leftover bytes from the previous content. On any error the temp file
// is removed and path is left untouched.
func (r *Result) ToFile(path string, optFns ...SaveOption) error {
	if path == "" {
		return errors.New("path must not be empty")
	}

	opts := saveOpts{perm: 0o644}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return fmt.Errorf("applying option: %w", err)
		}
	}

	if err := opts.checksum.verify(r.body); err != nil {
		return err
	}

	file, err := os.CreateTemp(filepath.Dir(path), ".fetch-save-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	var successful bool
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			r.logger.Error("defer closing temp file", "error", err)
		}
		if !successful {
			if err := os.Remove(file.Name()); err != nil {
				r.logger.Error("failed to remove temp file", "error", err)
			}
		}
	}()

	if _, err := file.Write(r.body); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := file.Chmod(opts.perm); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(file.Name(), path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	successful = true

	return nil
}
