package composite

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Signature is the BLAKE3 digest of a document's content (type tag,
// members and fields). Two documents with the same content share a
// signature regardless of their identifiers.
type Signature [32]byte

// signatureDomainKey separates document signatures from any other BLAKE3
// use of the same bytes. ASCII, zero-padded to 32 bytes.
var signatureDomainKey = [32]byte{
	'c', 'o', 'm', 'p', 'o', 's', 'i', 't', 'e', '.', 'd', 'o', 'c', 'u', 'm', 'e',
	'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Sign computes the signature of doc.
func Sign(doc *Document) (Signature, error) {
	data, err := encodeSignedContent(doc)
	if err != nil {
		return Signature{}, fmt.Errorf("sign document: %w", err)
	}
	hasher, err := blake3.NewKeyed(signatureDomainKey[:])
	if err != nil {
		panic("composite: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sig Signature
	copy(sig[:], hasher.Sum(nil))
	return sig, nil
}

// IsZero reports whether the signature has not been computed.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(s)) {
		return fmt.Errorf("signature must be %d hex characters, got %d", hex.EncodedLen(len(s)), len(text))
	}
	_, err := hex.Decode(s[:], text)
	return err
}
