// Package command implements the operator's interactive loop.
//
// Tokens are read one per line, trimmed and matched case-sensitively:
//
//	lambda   strategy: lambda / deploying stack... / done
//	ec2      strategy: ec2 / deploying stack... / done
//	k8s      [skipping unimplemented]
//	exit     destroying stack... / done, then the loop returns
//	<other>  invalid command: <other> skipping deployment.
//
// A blank line is an empty token and gets the invalid-command line too.
//
// Input is scanned by a reader goroutine into a buffered queue and a single
// worker runs the commands in order, so at most one deploy or destroy is in
// flight. End of input and context cancellation behave like exit.
package command
