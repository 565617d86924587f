package store

import (
	"cmp"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"unhidra/internal/domain"
)

const (
	spkPairsFile   = "spk_pairs.json"
	opkPairsFile   = "opk_pairs.json"
	prekeyMetaFile = "prekey_meta.json"
	handshakesFile = "handshakes.json"
)

// handshakeLogLimit bounds the accepted-handshake log of one signed
// pre-key. The oldest entries are dropped first.
const handshakeLogLimit = 4096

// PreKeyFileStore persists signed and one-time pre-key pairs to disk as
// 0600 JSON files under dir.
type PreKeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPreKeyFileStore returns a PreKeyFileStore rooted at dir.
func NewPreKeyFileStore(dir string) *PreKeyFileStore {
	return &PreKeyFileStore{dir: dir}
}

type prekeyMeta struct {
	CurrentSignedPreKeyID domain.SignedPreKeyID `json:"current_signed_pre_key_id"`
}

func (s *PreKeyFileStore) path(name string) string { return filepath.Join(s.dir, name) }

func (s *PreKeyFileStore) write(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return writeJSON(s.path(name), v, 0o600)
}

func (s *PreKeyFileStore) signedPreKeys() (map[domain.SignedPreKeyID]domain.SignedPreKeyPair, error) {
	m := map[domain.SignedPreKeyID]domain.SignedPreKeyPair{}
	if err := readJSON(s.path(spkPairsFile), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PreKeyFileStore) oneTimePreKeys() (map[domain.OneTimePreKeyID]domain.OneTimePreKeyPair, error) {
	m := map[domain.OneTimePreKeyID]domain.OneTimePreKeyPair{}
	if err := readJSON(s.path(opkPairsFile), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// handshakes maps a signed pre-key id to the hex ephemeral keys of the
// handshakes accepted under it, oldest first.
func (s *PreKeyFileStore) handshakes() (map[domain.SignedPreKeyID][]string, error) {
	m := map[domain.SignedPreKeyID][]string{}
	if err := readJSON(s.path(handshakesFile), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveSignedPreKey stores a signed pre-key by id.
func (s *PreKeyFileStore) SaveSignedPreKey(pair domain.SignedPreKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.signedPreKeys()
	if err != nil {
		return err
	}
	m[pair.ID] = pair
	return s.write(spkPairsFile, m)
}

// LoadSignedPreKey retrieves a signed pre-key by id.
func (s *PreKeyFileStore) LoadSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.signedPreKeys()
	if err != nil {
		return domain.SignedPreKeyPair{}, false, err
	}
	p, ok := m[id]
	return p, ok, nil
}

// ListSignedPreKeys returns every stored signed pre-key, oldest first.
func (s *PreKeyFileStore) ListSignedPreKeys() ([]domain.SignedPreKeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.signedPreKeys()
	if err != nil {
		return nil, err
	}
	out := make([]domain.SignedPreKeyPair, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.SignedPreKeyPair) int {
		return cmp.Or(cmp.Compare(a.CreatedUTC, b.CreatedUTC), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// DeleteSignedPreKey removes a signed pre-key. Deleting an unknown id is
// not an error.
func (s *PreKeyFileStore) DeleteSignedPreKey(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.signedPreKeys()
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	if err := s.write(spkPairsFile, m); err != nil {
		return err
	}

	hs, err := s.handshakes()
	if err != nil {
		return err
	}
	if _, ok := hs[id]; !ok {
		return nil
	}
	delete(hs, id)
	return s.write(handshakesFile, hs)
}

// SaveOneTimePreKeys merges the provided one-time pre-key pairs into the store.
func (s *PreKeyFileStore) SaveOneTimePreKeys(pairs []domain.OneTimePreKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.oneTimePreKeys()
	if err != nil {
		return err
	}
	for _, p := range pairs {
		m[p.ID] = p
	}
	return s.write(opkPairsFile, m)
}

// LoadOneTimePreKey returns a one-time pre-key without removing it.
func (s *PreKeyFileStore) LoadOneTimePreKey(id domain.OneTimePreKeyID) (domain.OneTimePreKeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.oneTimePreKeys()
	if err != nil {
		return domain.OneTimePreKeyPair{}, false, err
	}
	p, ok := m[id]
	return p, ok, nil
}

// ConsumeOneTimePreKey removes and returns a single one-time pre-key by id.
// ok is false when the key was already consumed.
func (s *PreKeyFileStore) ConsumeOneTimePreKey(id domain.OneTimePreKeyID) (domain.OneTimePreKeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.oneTimePreKeys()
	if err != nil {
		return domain.OneTimePreKeyPair{}, false, err
	}
	p, ok := m[id]
	if !ok {
		return domain.OneTimePreKeyPair{}, false, nil
	}
	delete(m, id)
	if err := s.write(opkPairsFile, m); err != nil {
		return domain.OneTimePreKeyPair{}, false, err
	}
	return p, true, nil
}

// ListOneTimePreKeyPublics exposes only the public halves for bundling,
// ordered by id.
func (s *PreKeyFileStore) ListOneTimePreKeyPublics() ([]domain.OneTimePreKeyPublic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.oneTimePreKeys()
	if err != nil {
		return nil, err
	}
	out := make([]domain.OneTimePreKeyPublic, 0, len(m))
	for _, p := range m {
		out = append(out, p.Public())
	}
	slices.SortFunc(out, func(a, b domain.OneTimePreKeyPublic) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// HandshakeSeen reports whether a handshake with ephemeral was accepted
// under spk.
func (s *PreKeyFileStore) HandshakeSeen(spk domain.SignedPreKeyID, ephemeral domain.X25519Public) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hs, err := s.handshakes()
	if err != nil {
		return false, err
	}
	return slices.Contains(hs[spk], hex.EncodeToString(ephemeral[:])), nil
}

// RecordHandshake adds ephemeral to the log of spk. ok is false when it
// was already there.
func (s *PreKeyFileStore) RecordHandshake(spk domain.SignedPreKeyID, ephemeral domain.X25519Public) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hs, err := s.handshakes()
	if err != nil {
		return false, err
	}
	e := hex.EncodeToString(ephemeral[:])
	if slices.Contains(hs[spk], e) {
		return false, nil
	}
	entries := append(hs[spk], e)
	if len(entries) > handshakeLogLimit {
		entries = entries[len(entries)-handshakeLogLimit:]
	}
	hs[spk] = entries
	if err := s.write(handshakesFile, hs); err != nil {
		return false, err
	}
	return true, nil
}

// SetCurrentSignedPreKeyID records which signed pre-key id is current.
func (s *PreKeyFileStore) SetCurrentSignedPreKeyID(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(prekeyMetaFile, prekeyMeta{CurrentSignedPreKeyID: id})
}

// CurrentSignedPreKeyID returns the recorded current signed pre-key id.
func (s *PreKeyFileStore) CurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta prekeyMeta
	if err := readJSON(s.path(prekeyMetaFile), &meta); err != nil {
		return "", false, err
	}
	if meta.CurrentSignedPreKeyID == "" {
		return "", false, nil
	}
	return meta.CurrentSignedPreKeyID, true, nil
}

// Compile-time assertion that PreKeyFileStore implements domain.PreKeyStore.
var _ domain.PreKeyStore = (*PreKeyFileStore)(nil)
