package app

import (
	"net/http"
	"os"

	"github.com/pkg/errors"

	"cipherlink/internal/domain"
	"cipherlink/internal/relay"
	identitysvc "cipherlink/internal/services/identity"
	prekeysvc "cipherlink/internal/services/prekey"
	provisioningsvc "cipherlink/internal/services/provisioning"
	registrationsvc "cipherlink/internal/services/registration"
	"cipherlink/internal/store"
)

// ErrNoPassphrase is returned by NewWire when no key store passphrase was
// configured.
var ErrNoPassphrase = errors.New("passphrase required (--passphrase or CIPHERLINK_PASSPHRASE)")

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config Config

	Keys    domain.KeyStateStore
	Records *store.AccountRecordDB
	Relay   domain.RelayClient
	HTTP    *http.Client

	Identity     *identitysvc.Service
	Registration *registrationsvc.Service
	Prekey       *prekeysvc.Service
	Initiator    *provisioningsvc.Manager
	Acceptor     *provisioningsvc.Coordinator
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	if cfg.Passphrase == "" {
		return nil, ErrNoPassphrase
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, errors.Wrap(err, "create home")
	}

	// Stores
	keys, err := store.OpenKeyStateFileStore(cfg.Home, cfg.Passphrase,
		store.WithScryptParams(cfg.ScryptN, 8, 1))
	if err != nil {
		return nil, err
	}
	records, err := store.OpenAccountRecordDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	prekeyStore := store.NewPrekeyFileStore(cfg.Home)

	// Ensure an HTTP client is available for outbound calls
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	rc := relay.NewHTTP(cfg.RelayURL, httpClient, relay.WithPollRate(cfg.PollPerSecond))

	// High-level services
	registrationSvc := registrationsvc.New(keys)
	prekeySvc := prekeysvc.New(keys, prekeyStore, rc)
	initiator := provisioningsvc.NewManager(keys, rc,
		provisioningsvc.WithPeerExtraPublicKey(cfg.PeerExtraKey))
	acceptor := provisioningsvc.NewCoordinator(keys, records, rc, registrationSvc, prekeySvc)

	return &Wire{
		Config:       cfg,
		Keys:         keys,
		Records:      records,
		Relay:        rc,
		HTTP:         httpClient,
		Identity:     identitysvc.New(keys),
		Registration: registrationSvc,
		Prekey:       prekeySvc,
		Initiator:    initiator,
		Acceptor:     acceptor,
	}, nil
}

// Close releases the account record database.
func (w *Wire) Close() error {
	return w.Records.Close()
}
