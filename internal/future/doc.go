// Package future provides a resolve-once asynchronous result.
//
// A Future settles exactly once, with either a value or an error. Any number
// of goroutines may Await it; all of them observe the same outcome. Pending
// routes (a server that is still booting) and the gateway base URL are
// expressed as futures.
package future
