package domain

import (
	interfaces "cipherlink/internal/domain/interfaces"
	types "cipherlink/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	ACI                 = types.ACI
	PNI                 = types.PNI
	ServiceID           = types.ServiceID
	E164                = types.E164
	DeviceID            = types.DeviceID
	EphemeralDeviceID   = types.EphemeralDeviceID
	TokenID             = types.TokenID
	ProvisioningCode    = types.ProvisioningCode
	Fingerprint         = types.Fingerprint
	SignedPreKeyID      = types.SignedPreKeyID
	OneTimePreKeyID     = types.OneTimePreKeyID
	IdentityRole        = types.IdentityRole
	IdentityKeyPair     = types.IdentityKeyPair
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
	ProfileKey          = types.ProfileKey
	BackupKey           = types.BackupKey
	MasterKey           = types.MasterKey
	AccountEntropyPool  = types.AccountEntropyPool
	RootKey             = types.RootKey
	EntropyPoolRootKey  = types.EntropyPoolRootKey
	MasterKeyRootKey    = types.MasterKeyRootKey
	Capability          = types.Capability
	ProvisioningURL     = types.ProvisioningURL
	ProvisioningMessage = types.ProvisioningMessage
	ProvisioningResult  = types.ProvisioningResult
	AccountRecord       = types.AccountRecord
	PeerExtraKeyUpdate  = types.PeerExtraKeyUpdate
	LocalIdentifiers    = types.LocalIdentifiers
	RegistrationState   = types.RegistrationState
	DeviceLinkRequest   = types.DeviceLinkRequest
	DeviceLinkResponse  = types.DeviceLinkResponse
	OneTimePreKeyPair   = types.OneTimePreKeyPair
	OneTimePreKeyPublic = types.OneTimePreKeyPublic
	PreKeyBundle        = types.PreKeyBundle
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyStateReader           = interfaces.KeyStateReader
	KeyStateWriter           = interfaces.KeyStateWriter
	KeyStateStore            = interfaces.KeyStateStore
	AccountRecordStore       = interfaces.AccountRecordStore
	PreKeyStore              = interfaces.PreKeyStore
	ProvisioningService      = interfaces.ProvisioningService
	ProvisioningMailbox      = interfaces.ProvisioningMailbox
	DeviceService            = interfaces.DeviceService
	RelayClient              = interfaces.RelayClient
	IdentityService          = interfaces.IdentityService
	Initiator                = interfaces.Initiator
	Acceptor                 = interfaces.Acceptor
	RegistrationStateManager = interfaces.RegistrationStateManager
	PreKeyManager            = interfaces.PreKeyManager
)

// Frequently used constants and error kinds.
const (
	RoleACI               = types.RoleACI
	RolePNI               = types.RolePNI
	PrimaryDeviceID       = types.PrimaryDeviceID
	CapabilityLinkAndSync = types.CapabilityLinkAndSync
)

// IdentityRoles lists every identity role in a fixed order.
var IdentityRoles = types.IdentityRoles

var (
	ErrFatalPrecondition   = types.ErrFatalPrecondition
	ErrTransport           = types.ErrTransport
	ErrPersistenceConflict = types.ErrPersistenceConflict
	ErrNotFound            = types.ErrNotFound

	ErrInvalidServiceID       = types.ErrInvalidServiceID
	ErrInvalidE164            = types.ErrInvalidE164
	ErrInvalidEntropyPool     = types.ErrInvalidEntropyPool
	ErrInvalidIdentityRole    = types.ErrInvalidIdentityRole
	ErrIdentityKeyMismatch    = types.ErrIdentityKeyMismatch
	ErrEmptyPeerExtraKey      = types.ErrEmptyPeerExtraKey
	ErrPeerExtraKeyFields     = types.ErrPeerExtraKeyFields
	ErrIncompleteProvisioning = types.ErrIncompleteProvisioning
)

// Constructors and parsers.
var (
	NewACI                  = types.NewACI
	ParseACI                = types.ParseACI
	NewPNI                  = types.NewPNI
	ParsePNI                = types.ParsePNI
	ParseE164               = types.ParseE164
	ParseIdentityRole       = types.ParseIdentityRole
	NewAccountEntropyPool   = types.NewAccountEntropyPool
	ParseAccountEntropyPool = types.ParseAccountEntropyPool
	NewEntropyPoolRootKey   = types.NewEntropyPoolRootKey
	NewMasterKeyRootKey     = types.NewMasterKeyRootKey
)
