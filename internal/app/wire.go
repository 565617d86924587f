package app

import (
	"context"
	"net/http"
	"path/filepath"

	"unhidra/internal/domain"
	"unhidra/internal/relay"
	identitysvc "unhidra/internal/services/identity"
	messagesvc "unhidra/internal/services/message"
	prekeysvc "unhidra/internal/services/prekey"
	sessionsvc "unhidra/internal/services/session"
	"unhidra/internal/store"
)

// Wire bundles the stores and clients that do not need the passphrase.
type Wire struct {
	Config   Config
	Logs     *LogBackend
	Identity *identitysvc.Service
	PreKeys  *store.PreKeyFileStore
	Relay    *relay.Client
}

// NewWire constructs the locked part of the dependency graph from cfg.
func NewWire(cfg Config, logs *LogBackend, httpClient *http.Client) *Wire {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	rc := relay.NewClient(cfg.Relay.URL)
	rc.HTTP = httpClient
	return &Wire{
		Config:   cfg,
		Logs:     logs,
		Identity: identitysvc.New(store.NewIdentityFileStore(cfg.Home)),
		PreKeys:  store.NewPreKeyFileStore(filepath.Join(cfg.Home, "prekeys")),
		Relay:    rc,
	}
}

// Unlocked is the dependency graph available once the identity has been
// decrypted.
type Unlocked struct {
	Device   domain.DeviceID
	PreKeys  *prekeysvc.Service
	Sessions *sessionsvc.Service
	Messages *messagesvc.Service

	storage store.ClosableStorage
}

// Unlock decrypts the identity with passphrase and builds the pre-key,
// session and message services around it.
func (w *Wire) Unlock(ctx context.Context, passphrase string) (*Unlocked, error) {
	device, err := w.Config.DeviceID()
	if err != nil {
		return nil, err
	}
	id, err := w.Identity.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	defer id.Wipe()

	sealKey := ""
	if w.Config.Storage.Seal {
		sealKey = passphrase
	}
	storage, err := store.OpenStorage(ctx, store.Backend(w.Config.Storage.Backend),
		w.Config.StoragePath(), sealKey)
	if err != nil {
		return nil, err
	}

	registry := w.Relay.Registry()
	prekeys := prekeysvc.New(prekeysvc.Config{
		Local:    device,
		Identity: id,
		PreKeys:  w.PreKeys,
		Registry: registry,
		Policy:   w.Config.PreKeyPolicy(),
		Log:      w.Logs.Logger("PREK"),
	})
	sessions := sessionsvc.New(sessionsvc.Config{
		Local:    device,
		Identity: id,
		PreKeys:  w.PreKeys,
		Sessions: store.NewSessionStore(storage, w.Config.SessionStoreConfig()),
		Registry: registry,
		Ratchet:  w.Config.RatchetConfig(),
		Log:      w.Logs.Logger("SESS"),
	})
	messages := messagesvc.New(messagesvc.Config{
		Local:    device,
		Sessions: sessions,
		Mailbox:  w.Relay.Mailbox(),
		Log:      w.Logs.Logger("MSGS"),
	})
	return &Unlocked{
		Device:   device,
		PreKeys:  prekeys,
		Sessions: sessions,
		Messages: messages,
		storage:  storage,
	}, nil
}

// Close wipes the unlocked identity copies and closes session storage.
func (u *Unlocked) Close() error {
	u.PreKeys.Close()
	u.Sessions.Close()
	return u.storage.Close()
}
