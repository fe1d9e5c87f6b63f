// Package push holds the boundary to the external push-notification
// collaborator. The concrete provider lives outside this module; what is
// specified here is the contract: calls are best effort and a failure
// never fails the send that triggered it.
package push

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/repositories"
)

// NoopNotifier is the default when no provider is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, []string, string, string, map[string]string) error {
	return nil
}

// Dispatcher resolves a user's registered device tokens and hands them to
// the provider.
type Dispatcher struct {
	devices  repositories.IDeviceRepository
	notifier contract.Notifier
	log      *slog.Logger
}

func NewDispatcher(devices repositories.IDeviceRepository, notifier contract.Notifier, log *slog.Logger) *Dispatcher {
	return &Dispatcher{devices: devices, notifier: notifier, log: log}
}

// Send pushes to every FCM device of the user. No devices is silent
// success; provider errors are returned so the caller can log them, but
// they carry no further consequence.
func (d *Dispatcher) Send(ctx context.Context, userID, title, body string, data map[string]string) error {
	tokens, err := d.devices.TokensFor(userID, domain.PlatformFCM)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	return d.notifier.Notify(ctx, tokens, title, body, data)
}
