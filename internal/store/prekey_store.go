package store

import (
	"path/filepath"
	"sort"
	"sync"

	"cipherlink/internal/domain"
)

// PrekeyFileStore keeps pre-key pairs in one JSON document per identity
// role, "<role>_prekeys.json" under dir.
type PrekeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPrekeyFileStore returns a PrekeyFileStore rooted at dir.
func NewPrekeyFileStore(dir string) *PrekeyFileStore {
	return &PrekeyFileStore{dir: dir}
}

type signedPreKeyEntry struct {
	Priv domain.X25519Private `json:"priv"`
	Pub  domain.X25519Public  `json:"pub"`
	Sig  []byte               `json:"sig"`
}

type oneTimePreKeyEntry struct {
	Priv domain.X25519Private `json:"priv"`
	Pub  domain.X25519Public  `json:"pub"`
}

// rolePrekeys is the on-disk document of one role.
type rolePrekeys struct {
	Current domain.SignedPreKeyID                         `json:"current_signed_pre_key_id,omitempty"`
	Signed  map[domain.SignedPreKeyID]signedPreKeyEntry   `json:"signed,omitempty"`
	OneTime map[domain.OneTimePreKeyID]oneTimePreKeyEntry `json:"one_time,omitempty"`
}

func (s *PrekeyFileStore) file(role domain.IdentityRole) string {
	return filepath.Join(s.dir, role.String()+"_prekeys.json")
}

func (s *PrekeyFileStore) load(role domain.IdentityRole) (rolePrekeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadJSON[rolePrekeys](s.file(role))
}

// update applies fn to the role's document and writes it back.
func (s *PrekeyFileStore) update(role domain.IdentityRole, fn func(doc *rolePrekeys)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := loadJSON[rolePrekeys](s.file(role))
	if err != nil {
		return err
	}
	if doc.Signed == nil {
		doc.Signed = make(map[domain.SignedPreKeyID]signedPreKeyEntry)
	}
	if doc.OneTime == nil {
		doc.OneTime = make(map[domain.OneTimePreKeyID]oneTimePreKeyEntry)
	}
	fn(&doc)
	return saveJSON(s.file(role), doc)
}

// SaveSignedPreKey stores a signed pre-key under id.
func (s *PrekeyFileStore) SaveSignedPreKey(
	role domain.IdentityRole,
	id domain.SignedPreKeyID,
	priv domain.X25519Private,
	pub domain.X25519Public,
	sig []byte,
) error {
	return s.update(role, func(doc *rolePrekeys) {
		doc.Signed[id] = signedPreKeyEntry{Priv: priv, Pub: pub, Sig: append([]byte(nil), sig...)}
	})
}

// LoadSignedPreKey returns the signed pre-key stored under id.
func (s *PrekeyFileStore) LoadSignedPreKey(
	role domain.IdentityRole,
	id domain.SignedPreKeyID,
) (
	priv domain.X25519Private,
	pub domain.X25519Public,
	sig []byte,
	ok bool,
	err error,
) {
	doc, err := s.load(role)
	if err != nil {
		return priv, pub, nil, false, err
	}
	e, ok := doc.Signed[id]
	return e.Priv, e.Pub, e.Sig, ok, nil
}

// SaveOneTimePreKeys adds pairs, replacing entries with the same id.
func (s *PrekeyFileStore) SaveOneTimePreKeys(
	role domain.IdentityRole,
	pairs []domain.OneTimePreKeyPair,
) error {
	return s.update(role, func(doc *rolePrekeys) {
		for _, p := range pairs {
			doc.OneTime[p.ID] = oneTimePreKeyEntry{Priv: p.Priv, Pub: p.Pub}
		}
	})
}

// ListOneTimePreKeyPublics returns the public halves ordered by id.
func (s *PrekeyFileStore) ListOneTimePreKeyPublics(
	role domain.IdentityRole,
) ([]domain.OneTimePreKeyPublic, error) {
	doc, err := s.load(role)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OneTimePreKeyPublic, 0, len(doc.OneTime))
	for id, e := range doc.OneTime {
		out = append(out, domain.OneTimePreKeyPublic{ID: id, Pub: e.Pub})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetCurrentSignedPreKeyID marks id as the signed pre-key to publish.
func (s *PrekeyFileStore) SetCurrentSignedPreKeyID(
	role domain.IdentityRole,
	id domain.SignedPreKeyID,
) error {
	return s.update(role, func(doc *rolePrekeys) { doc.Current = id })
}

// CurrentSignedPreKeyID returns the signed pre-key marked current, if any.
func (s *PrekeyFileStore) CurrentSignedPreKeyID(
	role domain.IdentityRole,
) (domain.SignedPreKeyID, bool, error) {
	doc, err := s.load(role)
	if err != nil {
		return "", false, err
	}
	return doc.Current, doc.Current != "", nil
}

var _ domain.PreKeyStore = (*PrekeyFileStore)(nil)
