package chain

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

// Kind tags the JSON shape a loosely typed ledger field arrived in.
type Kind int

const (
	// Absent covers missing, null, empty and unparseable values.
	Absent Kind = iota
	// Sequence is a bare array, e.g. [84,97,110].
	Sequence
	// WrappedSequence is an option wrapper, e.g. {"vec":[84,97,110]}.
	WrappedSequence
	// Text is a plain JSON string.
	Text
	// Struct is an object carrying an id field, e.g. {"id":"0x2"}.
	Struct
)

func (k Kind) String() string {
	switch k {
	case Sequence:
		return "sequence"
	case WrappedSequence:
		return "wrapped"
	case Text:
		return "text"
	case Struct:
		return "struct"
	}
	return "absent"
}

// EncodeString returns the UTF-8 bytes of s for a vector<u8> argument.
func EncodeString(s string) []byte {
	return []byte(s)
}

// ByteVector decodes a vector<u8> field. Decoding never fails: anything it
// cannot read becomes Absent.
type ByteVector struct {
	Kind  Kind
	Bytes []byte
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteVector) UnmarshalJSON(data []byte) error {
	*b = decodeByteVector(data)
	return nil
}

// MarshalJSON renders the decoded text, or null when absent.
func (b ByteVector) MarshalJSON() ([]byte, error) {
	s, ok := b.Text()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}

// Text returns the decoded text. An empty vector is absent, never "".
func (b ByteVector) Text() (string, bool) {
	if b.Kind == Absent || len(b.Bytes) == 0 {
		return "", false
	}
	if !utf8.Valid(b.Bytes) {
		return string(bytes.ToValidUTF8(b.Bytes, []byte("�"))), true
	}
	return string(b.Bytes), true
}

// Ptr returns the decoded text or nil, for JSON responses with null fields.
func (b ByteVector) Ptr() *string {
	s, ok := b.Text()
	if !ok {
		return nil
	}
	return &s
}

// DecodeBytes decodes a raw field value into its text, or nil when absent.
func DecodeBytes(raw json.RawMessage) *string {
	return decodeByteVector(raw).Ptr()
}

func decodeByteVector(data []byte) ByteVector {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ByteVector{}
	}
	switch data[0] {
	case '[':
		if b, ok := parseByteArray(data); ok && len(b) > 0 {
			return ByteVector{Kind: Sequence, Bytes: b}
		}
	case '{':
		var w struct {
			Vec json.RawMessage `json:"vec"`
		}
		if json.Unmarshal(data, &w) != nil {
			return ByteVector{}
		}
		if b, ok := parseByteArray(w.Vec); ok && len(b) > 0 {
			return ByteVector{Kind: WrappedSequence, Bytes: b}
		}
	case '"':
		var s string
		if json.Unmarshal(data, &s) == nil && s != "" {
			return ByteVector{Kind: Text, Bytes: []byte(s)}
		}
	}
	return ByteVector{}
}

func parseByteArray(data []byte) ([]byte, bool) {
	var nums []json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&nums); err != nil {
		return nil, false
	}
	out := make([]byte, 0, len(nums))
	for _, n := range nums {
		v, err := n.Int64()
		if err != nil || v < 0 || v > 255 {
			return nil, false
		}
		out = append(out, byte(v))
	}
	return out, true
}

// OptionalAddress decodes an address held directly or in an option wrapper:
// "0xabc", {"vec":["0xabc"]} or absent.
type OptionalAddress struct {
	Kind    Kind
	Address string
}

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (a *OptionalAddress) UnmarshalJSON(data []byte) error {
	*a = OptionalAddress{}
	var s string
	if json.Unmarshal(data, &s) == nil {
		if s != "" {
			*a = OptionalAddress{Kind: Text, Address: s}
		}
		return nil
	}
	var w struct {
		Vec []string `json:"vec"`
	}
	if json.Unmarshal(data, &w) == nil && len(w.Vec) > 0 && w.Vec[0] != "" {
		*a = OptionalAddress{Kind: WrappedSequence, Address: w.Vec[0]}
	}
	return nil
}

// Value returns the address, "" when absent.
func (a OptionalAddress) Value() string {
	return a.Address
}

// ObjectRef decodes an object id held as "0xid", {"id":"0xid"},
// {"vec":["0xid"]} or absent.
type ObjectRef struct {
	Kind Kind
	ID   string
}

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (r *ObjectRef) UnmarshalJSON(data []byte) error {
	*r = ObjectRef{}
	var s string
	if json.Unmarshal(data, &s) == nil {
		if s != "" {
			*r = ObjectRef{Kind: Text, ID: s}
		}
		return nil
	}
	var obj struct {
		ID  json.RawMessage   `json:"id"`
		Vec []json.RawMessage `json:"vec"`
	}
	if json.Unmarshal(data, &obj) != nil {
		return nil
	}
	if len(obj.ID) > 0 {
		var nested ObjectRef
		_ = nested.UnmarshalJSON(obj.ID)
		if nested.ID != "" {
			*r = ObjectRef{Kind: Struct, ID: nested.ID}
		}
		return nil
	}
	if len(obj.Vec) > 0 {
		var nested ObjectRef
		_ = nested.UnmarshalJSON(obj.Vec[0])
		if nested.ID != "" {
			*r = ObjectRef{Kind: WrappedSequence, ID: nested.ID}
		}
	}
	return nil
}
