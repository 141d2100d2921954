// Package strategy maps a selector to a compute backend and normalizes the
// result into a route descriptor.
//
// The strategies are a closed set handled by one switch in Dispatch:
//
//	lambda  FunctionCompute   event handler target, resolved immediately
//	ec2     VirtualMachine    HTTP proxy target, resolved after readiness polling
//	k8s     ContainerCluster  ErrNotImplemented, nothing is created
//
// Any other selector is ErrInvalidSelector, a configuration error that the
// caller should not retry. Backend failures are wrapped in ErrProvisionFailed.
package strategy
