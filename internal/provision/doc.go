// Package provision creates the compute resources that host a route's
// callback.
//
// Backend is the contract the strategy dispatcher provisions through. Local
// implements it on one machine:
//
//   - KindFunction registers an in-process handler named
//     <name>-xbow-lambda-<suffix>. The gateway looks it up with Resolve. The
//     handler wraps the callback result as a 200 with {...result, host:"lambda"}.
//   - KindServer starts a loopback HTTP host named myexpress-<suffix>. It
//     answers 503 for the configured boot delay, then serves GET / with
//     {...result, host:"ec2"}.
//   - KindContainer is not supported.
//
// Every created resource is recorded in the stack store and removed from it
// on Destroy.
package provision
