package composite

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// document always encodes to the same bytes. Identifiers and signatures go
// out as text through MarshalText.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("composite: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("composite: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeDocument returns the canonical CBOR form of doc, server fields
// included. Snapshots and the SQL stores keep documents in this form.
func EncodeDocument(doc *Document) ([]byte, error) {
	data, err := encMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	return data, nil
}

// DecodeDocument parses data produced by EncodeDocument.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := decMode.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

// signedContent is the part of a document covered by its signature.
type signedContent struct {
	TypeTag string           `cbor:"1,keyasint"`
	Members []ObjectID       `cbor:"2,keyasint"`
	Fields  map[string]Value `cbor:"3,keyasint,omitempty"`
}

func encodeSignedContent(doc *Document) ([]byte, error) {
	members := doc.Members
	if members == nil {
		members = []ObjectID{}
	}
	return encMode.Marshal(signedContent{
		TypeTag: doc.TypeTag,
		Members: members,
		Fields:  doc.Fields,
	})
}
