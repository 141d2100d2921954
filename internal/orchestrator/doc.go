// Package orchestrator owns the process's one DeploymentState and drives it
// through its lifecycle:
//
//	Idle --Deploy(lambda|ec2)--> Deploying --> Idle
//	Idle --Deploy(k8s)--> Idle                 ("[skipping unimplemented]")
//	Idle --Destroy--> Destroying --> Terminated
//
// Deploy and Destroy hold one lifecycle mutex, so at most one runs at a time
// and each observes the state exactly as the previous one left it.
// Terminated is absorbing: later calls return ErrTerminated.
//
// A redeploy creates the new resources first and releases the previous
// deployment's resources only after the new route line has been printed. A
// failed attempt prints "deploy failed: <err>", clears the active route and
// keeps every handle it created so the final destroy reclaims it.
//
// Each deploy and the destroy are written to the stack history in package
// store.
package orchestrator
