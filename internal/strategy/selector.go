// ABOUTME: Strategy selector naming the compute backend a route is deployed to
// ABOUTME: Parses the textual names lambda, ec2 and k8s

package strategy

import (
	"fmt"
)

// Selector names a deployment strategy.
type Selector int

const (
	FunctionCompute Selector = iota + 1
	VirtualMachine
	ContainerCluster
)

// Selectors lists every supported selector.
var Selectors = []Selector{FunctionCompute, VirtualMachine, ContainerCluster}

func (s Selector) String() string {
	switch s {
	case FunctionCompute:
		return "lambda"
	case VirtualMachine:
		return "ec2"
	case ContainerCluster:
		return "k8s"
	default:
		return fmt.Sprintf("selector(%d)", int(s))
	}
}

// Implemented reports whether dispatching s can deploy anything.
func (s Selector) Implemented() bool {
	return s == FunctionCompute || s == VirtualMachine
}

// ParseSelector converts a textual name into a Selector. Names are
// case-sensitive.
func ParseSelector(name string) (Selector, error) {
	for _, s := range Selectors {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSelector, name)
}
