// Package readiness waits for a freshly provisioned HTTP endpoint to accept
// traffic.
//
// # Polling
//
// Poller.AwaitReady issues a GET against the candidate URI. A 200 response
// resolves immediately; any other status, or a network error, is treated as
// "not ready yet" and retried after Policy.Interval (5s by default).
//
// The default policy has no attempt limit and no timeout, so polling only
// stops on success or when the context is cancelled. MaxAttempts and Timeout
// bound it; a bounded poller gives up with ErrNotReady.
//
// # Progress Output
//
// Each probe writes a line to the configured Output so an operator can follow
// a long boot:
//
//	waiting on server up [url=http://127.0.0.1:41233]
//	sleeping
//	waiting on server up [url=http://127.0.0.1:41233]
//	success
package readiness
