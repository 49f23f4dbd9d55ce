// Package httpclient builds the HTTP clients used to talk to model
// endpoints.
//
// A client is a stack of transports around a pooled base transport:
//
//	retry -> rate limit -> logging -> base
//
// Retries back off exponentially with jitter and honor Retry-After. The
// rate limiter spaces every attempt, retries included. The logging layer
// sets the User-Agent, forwards the active trace ID and logs each request
// with sensitive query parameters redacted.
//
// Example usage:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "mcpagent/1.0"
//	cfg.RequestsPerMinute = 60
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
package httpclient
