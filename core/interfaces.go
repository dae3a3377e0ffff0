package core

import "context"

// Notifier is an interface to receive table mutation notifications. The
// context carries the request logger of the originating request, so
// notification sinks can correlate events with request logs.
type Notifier interface {
	Notify(ctx context.Context, table string, capability Capability, payload []byte)
}
