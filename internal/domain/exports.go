package domain

import (
	interfaces "unhidra/internal/domain/interfaces"
	types "unhidra/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	DeviceID            = types.DeviceID
	Fingerprint         = types.Fingerprint
	SignedPreKeyID      = types.SignedPreKeyID
	OneTimePreKeyID     = types.OneTimePreKeyID
	BundleID            = types.BundleID
	Identity            = types.Identity
	IdentityPublic      = types.IdentityPublic
	SignedPreKeyPair    = types.SignedPreKeyPair
	OneTimePreKeyPair   = types.OneTimePreKeyPair
	OneTimePreKeyPublic = types.OneTimePreKeyPublic
	PreKeyUpload        = types.PreKeyUpload
	PreKeyBundle        = types.PreKeyBundle
	InitialMessage      = types.InitialMessage
	MaintenanceReport   = types.MaintenanceReport
	Envelope            = types.Envelope
	Extension           = types.Extension
	Delivery            = types.Delivery
	DecryptedMessage    = types.DecryptedMessage
	RatchetHeader       = types.RatchetHeader
	RatchetState        = types.RatchetState
	ChainState          = types.ChainState
	SkippedKeyID        = types.SkippedKeyID
	SkippedMessageKey   = types.SkippedMessageKey
	SkippedKeyRing      = types.SkippedKeyRing
	SessionPhase        = types.SessionPhase
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
)

// Re-exported constants.
const (
	EnvelopeVersion               = types.EnvelopeVersion
	PhaseUninitialized            = types.PhaseUninitialized
	PhaseEstablishedSender        = types.PhaseEstablishedSender
	PhaseEstablishedBidirectional = types.PhaseEstablishedBidirectional
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityService = interfaces.IdentityService
	PreKeyService   = interfaces.PreKeyService
	SessionService  = interfaces.SessionService
	MessageService  = interfaces.MessageService
	IdentityStore   = interfaces.IdentityStore
	PreKeyStore     = interfaces.PreKeyStore
	SessionStorage  = interfaces.SessionStorage
	PreKeyRegistry  = interfaces.PreKeyRegistry
	Mailbox         = interfaces.Mailbox
)
