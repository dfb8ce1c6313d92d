package types

import "time"

// Credential is the decrypted content of a pilgrim's NFC card. It exists
// only transiently in memory during a read or write operation; plaintext
// credentials are never persisted.
type Credential struct {
	HajjID     string `cbor:"1,keyasint"`
	IssueNonce uint64 `cbor:"2,keyasint"`
	Checksum   uint32 `cbor:"3,keyasint"`
}

// PilgrimRecord is one enrolled pilgrim. Records are never hard-deleted:
// re-issuance tombstones the old record via SupersededAt so the audit
// trail stays intact.
type PilgrimRecord struct {
	HajjID         string
	Name           string
	CardCredential string // sealed blob in transport encoding
	FingerprintRef int    // sensor template slot, 1-120
	EnrolledAt     time.Time
	SupersededAt   *time.Time
}

// Active reports whether the record is the live one for its hajj id.
func (r PilgrimRecord) Active() bool { return r.SupersededAt == nil }
