package interfaces

import (
	"context"

	domaintypes "unhidra/internal/domain/types"
)

// PreKeyRegistry publishes and hands out pre-key bundles.
type PreKeyRegistry interface {
	// Publish replaces the device's published keys and returns the new
	// bundle id.
	Publish(
		ctx context.Context,
		device domaintypes.DeviceID,
		upload domaintypes.PreKeyUpload,
	) (domaintypes.BundleID, error)

	// Fetch returns a bundle carrying at most one one-time pre-key, or
	// ErrBundleNotFound.
	Fetch(ctx context.Context, device domaintypes.DeviceID) (domaintypes.PreKeyBundle, error)

	// ConsumeOneTimePreKey deletes the one-time pre-key, or returns
	// ErrPreKeyConsumed if it is already gone.
	ConsumeOneTimePreKey(
		ctx context.Context,
		device domaintypes.DeviceID,
		id domaintypes.OneTimePreKeyID,
	) error
}

// Mailbox is the store-and-forward side of the relay. Payloads are opaque
// encoded envelopes.
type Mailbox interface {
	Send(ctx context.Context, delivery domaintypes.Delivery) error
	Fetch(ctx context.Context, me domaintypes.DeviceID, limit int) ([]domaintypes.Delivery, error)
	Ack(ctx context.Context, me domaintypes.DeviceID, count int) error
}
