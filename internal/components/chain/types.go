// Package chain holds the ledger-facing types: the field codec, the JSON-RPC
// reader and the sponsored transaction executor.
package chain

import (
	"encoding/json"
	"strconv"
)

// OwnerKind classifies object ownership.
type OwnerKind string

const (
	OwnerUnknown   OwnerKind = ""
	OwnerAddress   OwnerKind = "AddressOwner"
	OwnerObject    OwnerKind = "ObjectOwner"
	OwnerShared    OwnerKind = "Shared"
	OwnerImmutable OwnerKind = "Immutable"
)

// Owner is the ownership metadata of an object.
type Owner struct {
	Kind                 OwnerKind
	Address              string
	InitialSharedVersion uint64
}

// UnmarshalJSON accepts {"AddressOwner":"0x.."}, {"ObjectOwner":"0x.."},
// {"Shared":{"initial_shared_version":N}} and "Immutable".
func (o *Owner) UnmarshalJSON(data []byte) error {
	*o = Owner{}
	var s string
	if json.Unmarshal(data, &s) == nil {
		o.Kind = OwnerKind(s)
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if raw, ok := m[string(OwnerAddress)]; ok {
		o.Kind = OwnerAddress
		return json.Unmarshal(raw, &o.Address)
	}
	if raw, ok := m[string(OwnerObject)]; ok {
		o.Kind = OwnerObject
		return json.Unmarshal(raw, &o.Address)
	}
	if raw, ok := m[string(OwnerShared)]; ok {
		o.Kind = OwnerShared
		var shared struct {
			InitialSharedVersion json.Number `json:"initial_shared_version"`
		}
		if json.Unmarshal(raw, &shared) == nil && shared.InitialSharedVersion != "" {
			o.InitialSharedVersion, _ = strconv.ParseUint(shared.InitialSharedVersion.String(), 10, 64)
		}
		return nil
	}
	return nil
}

// IsShared reports whether the object is a shared object.
func (o *Owner) IsShared() bool {
	return o != nil && o.Kind == OwnerShared
}

// Content is the decoded Move content of an object.
type Content struct {
	DataType string          `json:"dataType"`
	Type     string          `json:"type"`
	Fields   json.RawMessage `json:"fields"`
}

// IsMoveObject reports whether the content carries Move struct fields.
func (c *Content) IsMoveObject() bool {
	return c != nil && c.DataType == "moveObject"
}

// Object is a ledger object as returned by the reader.
type Object struct {
	ObjectID string   `json:"objectId"`
	Version  string   `json:"version"`
	Digest   string   `json:"digest"`
	Type     string   `json:"type"`
	Owner    *Owner   `json:"owner"`
	Content  *Content `json:"content"`
}

// Event is an emitted Move event.
type Event struct {
	Type        string          `json:"type"`
	Sender      string          `json:"sender,omitempty"`
	ParsedJSON  json.RawMessage `json:"parsedJson"`
	TimestampMS string          `json:"timestampMs,omitempty"`
}

// ArgKind tags a Move call argument.
type ArgKind string

const (
	ArgObject ArgKind = "object"
	ArgPure   ArgKind = "pure"
)

// Argument is a Move call argument: a shared object reference or a pure
// vector<u8> value.
type Argument struct {
	Kind     ArgKind `json:"kind"`
	ObjectID string  `json:"object_id,omitempty"`
	Type     string  `json:"type,omitempty"`
	Value    []byte  `json:"value,omitempty"`
}

// ObjectArg references a shared object by id.
func ObjectArg(id string) Argument {
	return Argument{Kind: ArgObject, ObjectID: id}
}

// BytesArg is a pure vector<u8> argument holding the UTF-8 bytes of s.
func BytesArg(s string) Argument {
	return Argument{Kind: ArgPure, Type: "vector<u8>", Value: EncodeString(s)}
}

// MoveCall is a single entry function call.
type MoveCall struct {
	Target    string     `json:"target"`
	Arguments []Argument `json:"arguments"`
}

// Transaction is an unsigned gasless transaction for the sponsor relay.
type Transaction struct {
	Sender    string   `json:"sender"`
	MoveCall  MoveCall `json:"move_call"`
	GasBudget uint64   `json:"gas_budget,omitempty"`
}

// TxResponse is the executed transaction as reported by the relay.
type TxResponse struct {
	Digest string  `json:"digest"`
	Events []Event `json:"events"`
}
