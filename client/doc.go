// Package client provides the core implementation of the configurable HTTP
// client built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithDefaults(reqopt.WithTimeout(10*time.Second)),
//		client.WithUserAgent("myapp/1.0"),
//	)
//
// # Making Requests
//
// Every verb returns a [result.Result]. HTTP error statuses are data, and
// transport failures are recorded on the Result; the returned error is
// reserved for invalid options:
//
//	res, err := c.Post(ctx, "https://api.example.com/v1/things",
//		map[string]any{"name": "x"},
//		reqopt.WithType(reqopt.JSON),
//	)
//	if err != nil { ... }            // bad configuration, nothing sent
//	if err := res.Err(); err != nil { ... } // connection, TLS, timeout
//	fmt.Println(res.Code(), res.Get("id").String())
//
// # Option Precedence
//
// Options resolve from lowest to highest precedence: built-in defaults,
// client defaults ([WithDefaults], [Client.Set]), per-call options,
// per-target options of a batch, and finally transport overrides
// ([reqopt.WithTransportOverride]).
//
// # Batches
//
// [Client.MultiGet] and [Client.MultiRequest] run every target
// concurrently and return results in target order:
//
//	results, err := c.MultiGet(ctx, client.URLs(a, b, c))
//	for i, r := range results { ... } // results[i] belongs to the i-th URL
//
// Use [WithConcurrency] to bound how many requests are in flight and
// [WithThrottle] to pace them.
package client
