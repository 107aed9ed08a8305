package sim

import "errors"

var (
	// ErrNoCandidateRoutes means no routing entry covers the destination.
	ErrNoCandidateRoutes = errors.New("balancer: no candidate routes")
	// ErrNoIPLayerBound means a route was requested before a network layer was attached.
	ErrNoIPLayerBound = errors.New("balancer: no ip layer bound")
	// ErrNoInterfaceAddress means the chosen interface carries no address.
	// Non-fatal: the route is still produced, with an unset source.
	ErrNoInterfaceAddress = errors.New("balancer: interface has no address")
	ErrInvalidCandidateSet = errors.New("balancer: candidate set is empty")
	ErrFrameDecode         = errors.New("balancer: frame decode failed")
	ErrConfiguration       = errors.New("balancer: invalid configuration")
	ErrNoRouteToHost       = errors.New("balancer: no route to host")
)
