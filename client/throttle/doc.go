// Package throttle rate-limits outbound HTTP requests using a
// token-bucket algorithm from [golang.org/x/time/rate].
//
// # Usage
//
// Create one [Limiter] and wrap every transport that must share its
// budget:
//
//	lim, err := throttle.New(
//		10, // requests per second
//		5,  // burst capacity
//		slog.Default(),
//	)
//	httpClient := &http.Client{Transport: lim.Wrap(http.DefaultTransport)}
//
// When the rate limit is exceeded, outbound requests block until a
// token becomes available or the request context is cancelled.
package throttle
