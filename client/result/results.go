package result

import (
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/multierr"
)

// TransportError describes a request that failed below HTTP: connection
// refused, TLS failure, timeout, redirect limit and the like.
type TransportError struct {
	URL     string
	Message string
}

func (e *TransportError) Error() string {
	if e.URL == "" {
		return e.Message
	}

	return fmt.Sprintf("%s: %s", e.URL, e.Message)
}

// BatchError ties a transport failure to its position in a batch.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("request %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Results is the index-aligned output of a batch: Results[i] belongs to
// the i-th request of the batch.
type Results []*Result

// Err combines the transport errors of every failed request, or returns
// nil when all of them completed. Use multierr.Errors to split it.
func (rs Results) Err() error {
	var err error
	for i, r := range rs {
		if r == nil {
			continue
		}
		if rErr := r.Err(); rErr != nil {
			err = multierr.Append(err, &BatchError{Index: i, Err: rErr})
		}
	}

	return err
}

// Summary aggregates a batch.
type Summary struct {
	Total  int
	Failed int
	Codes  map[int]int

	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	P50  time.Duration
	P90  time.Duration
	P99  time.Duration
}

// Summary reports status code counts and latency quantiles. Latencies
// are recorded in microseconds, up to one hour.
func (rs Results) Summary() Summary {
	s := Summary{
		Total: len(rs),
		Codes: make(map[int]int),
	}

	hist := hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 3)
	for _, r := range rs {
		if r == nil {
			continue
		}
		if r.ErrorMessage() != "" {
			s.Failed++
		}
		if code := r.Code(); code != 0 {
			s.Codes[code]++
		}

		us := r.Time().Microseconds()
		if us < 1 {
			us = 1
		}
		_ = hist.RecordValue(us)
	}

	if hist.TotalCount() == 0 {
		return s
	}

	s.Min = time.Duration(hist.Min()) * time.Microsecond
	s.Max = time.Duration(hist.Max()) * time.Microsecond
	s.Mean = time.Duration(hist.Mean()) * time.Microsecond
	s.P50 = time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond
	s.P90 = time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond
	s.P99 = time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond

	return s
}
