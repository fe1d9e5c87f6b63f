//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
)

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Sink is the outbound half of a live session: whatever can accept a raw
// frame for one connected client. Send must not block its caller beyond
// the session's own buffering discipline.
type Sink interface {
	Send(payload []byte) error
}

// IRegistry tracks the live sessions of each user on this process.
// Delivery to other instances must already have gone through the fanout
// bus before a registry is asked to send.
type IRegistry interface {
	Register(userID string, sink Sink)
	Unregister(userID string, sink Sink)
	SendToUser(userID string, payload []byte) int
	CountForUser(userID string) int
}

// Notifier is the external push collaborator boundary. Implementations
// must treat every call as best effort; the coordinator logs and swallows
// failures.
type Notifier interface {
	Notify(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
