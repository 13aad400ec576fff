package types

import (
	"bytes"
	"encoding/json"
)

// AccountRecord is the long-lived per-account contact row, keyed by
// RecipientServiceID.
//
// PeerExtraPublicKey and PeerExtraPublicKeyTimestamp are set and cleared
// together. Rows written before they existed decode with both nil.
type AccountRecord struct {
	ID            int64  `json:"id,omitempty"`
	UniqueID      string `json:"unique_id"`
	RecordVersion int64  `json:"record_version,omitempty"`

	RecipientPhoneNumber E164      `json:"recipient_phone_number,omitempty"`
	RecipientServiceID   ServiceID `json:"recipient_service_id,omitempty"`
	MultipleAccountLabel string    `json:"multiple_account_label,omitempty"`
	ContactID            string    `json:"contact_id,omitempty"`
	GivenName            string    `json:"given_name,omitempty"`
	FamilyName           string    `json:"family_name,omitempty"`
	Nickname             string    `json:"nickname,omitempty"`
	FullName             string    `json:"full_name,omitempty"`
	ContactAvatarHash    []byte    `json:"contact_avatar_hash,omitempty"`

	PeerExtraPublicKey          []byte `json:"peer_extra_public_key,omitempty"`
	PeerExtraPublicKeyTimestamp *int64 `json:"peer_extra_public_key_timestamp,omitempty"`
}

// HasSameContent compares every content field. Row metadata (ID, UniqueID,
// RecordVersion) is ignored.
func (r AccountRecord) HasSameContent(o AccountRecord) bool {
	return r.RecipientPhoneNumber == o.RecipientPhoneNumber &&
		r.RecipientServiceID == o.RecipientServiceID &&
		r.MultipleAccountLabel == o.MultipleAccountLabel &&
		r.ContactID == o.ContactID &&
		r.GivenName == o.GivenName &&
		r.FamilyName == o.FamilyName &&
		r.Nickname == o.Nickname &&
		r.FullName == o.FullName &&
		bytes.Equal(r.ContactAvatarHash, o.ContactAvatarHash) &&
		sameOptionalBytes(r.PeerExtraPublicKey, o.PeerExtraPublicKey) &&
		sameOptionalInt(r.PeerExtraPublicKeyTimestamp, o.PeerExtraPublicKeyTimestamp)
}

// Copy returns a deep copy, row metadata included.
func (r AccountRecord) Copy() AccountRecord {
	out := r
	out.ContactAvatarHash = cloneBytes(r.ContactAvatarHash)
	out.PeerExtraPublicKey = cloneBytes(r.PeerExtraPublicKey)
	if r.PeerExtraPublicKeyTimestamp != nil {
		ts := *r.PeerExtraPublicKeyTimestamp
		out.PeerExtraPublicKeyTimestamp = &ts
	}
	return out
}

// HasPeerExtraPublicKey reports whether the peer fields are populated.
func (r AccountRecord) HasPeerExtraPublicKey() bool {
	return r.PeerExtraPublicKey != nil && r.PeerExtraPublicKeyTimestamp != nil
}

// SetPeerExtraPublicKey stores a copy of key with its write time in
// milliseconds.
func (r *AccountRecord) SetPeerExtraPublicKey(key []byte, timestampMillis int64) error {
	if len(key) == 0 {
		return ErrEmptyPeerExtraKey
	}
	r.PeerExtraPublicKey = cloneBytes(key)
	r.PeerExtraPublicKeyTimestamp = &timestampMillis
	return nil
}

// ClearPeerExtraPublicKey drops both peer fields.
func (r *AccountRecord) ClearPeerExtraPublicKey() {
	r.PeerExtraPublicKey = nil
	r.PeerExtraPublicKeyTimestamp = nil
}

// ValidatePeerExtraFields rejects a record with only one peer field set.
func (r AccountRecord) ValidatePeerExtraFields() error {
	if (r.PeerExtraPublicKey == nil) != (r.PeerExtraPublicKeyTimestamp == nil) {
		return ErrPeerExtraKeyFields
	}
	return nil
}

// UnmarshalJSON decodes r and enforces the peer field pairing.
func (r *AccountRecord) UnmarshalJSON(b []byte) error {
	type plain AccountRecord
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	rec := AccountRecord(v)
	if err := rec.ValidatePeerExtraFields(); err != nil {
		return err
	}
	*r = rec
	return nil
}

// PeerExtraKeyUpdate is a partial update of the peer fields. An empty Key
// leaves the record untouched.
type PeerExtraKeyUpdate struct {
	Key             []byte
	TimestampMillis int64
}

// Apply writes u into r and reports whether anything changed.
func (u PeerExtraKeyUpdate) Apply(r *AccountRecord) bool {
	if len(u.Key) == 0 {
		return false
	}
	// Key is non-empty, so this cannot fail.
	_ = r.SetPeerExtraPublicKey(u.Key, u.TimestampMillis)
	return true
}

func sameOptionalBytes(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}

func sameOptionalInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
