// Package runtime owns the process-local moving parts: the connection
// registry and the supervised background workers.
package runtime

import (
	"log/slog"
	"sync"

	"chat-relay/contract"
)

type sessionSet map[contract.Sink]struct{}

// Registry tracks the live sessions of each user on this process only. A
// user may hold several simultaneous sessions (multi-device); delivery to
// other instances must already have gone through the fanout bus before
// reaching a registry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]sessionSet
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{sessions: make(map[string]sessionSet), log: log}
}

// Register adds one session to the user's set.
func (r *Registry) Register(userID string, sink contract.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; !ok {
		r.sessions[userID] = make(sessionSet)
	}
	r.sessions[userID][sink] = struct{}{}
}

// Unregister removes one session. Removing an already-absent session is a
// no-op, so disconnect paths may race without harm. Empty sets are
// dropped to keep the map from growing with every user ever connected.
func (r *Registry) Unregister(userID string, sink contract.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[userID]
	if !ok {
		return
	}
	delete(set, sink)
	if len(set) == 0 {
		delete(r.sessions, userID)
	}
}

// SendToUser delivers the payload to every locally registered session of
// the user and returns how many received it. Zero sessions is silent
// success: the user simply isn't connected here.
func (r *Registry) SendToUser(userID string, payload []byte) int {
	r.mu.RLock()
	sinks := make([]contract.Sink, 0, len(r.sessions[userID]))
	for sink := range r.sessions[userID] {
		sinks = append(sinks, sink)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sink := range sinks {
		if err := sink.Send(payload); err != nil {
			r.log.Debug("Local session refused payload", "user", userID, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}

// CountForUser reports the number of live local sessions.
func (r *Registry) CountForUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}
