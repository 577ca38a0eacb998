package lms

// Connectivity reports whether the device can currently reach the network.
// Detection itself lives outside the sync core.
type Connectivity interface {
	IsOnline() bool

	// Subscribe registers fn to be called with the new state on every
	// transition. The returned func removes the subscription.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Identity provides the current actor (user) identifier used to scope
// caches and stamp queued actions.
type Identity interface {
	ActorID() int64
}
