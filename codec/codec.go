// Package codec encodes registry records for the state store.
//
// Records are RLP-encoded: the encoding is canonical, so the same record
// always produces the same bytes regardless of the backend it is written to.
package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ruteri/equipment-registry/interfaces"
)

// EncodeEquipment serializes an equipment record.
func EncodeEquipment(rec interfaces.EquipmentRecord) ([]byte, error) {
	data, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return nil, fmt.Errorf("encode equipment %d: %w", rec.ID, err)
	}
	return data, nil
}

// DecodeEquipment deserializes an equipment record.
func DecodeEquipment(data []byte) (interfaces.EquipmentRecord, error) {
	var rec interfaces.EquipmentRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return interfaces.EquipmentRecord{}, fmt.Errorf("decode equipment: %w", err)
	}
	return rec, nil
}

// EncodeProvider serializes a provider record.
func EncodeProvider(rec interfaces.ProviderRecord) ([]byte, error) {
	data, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return nil, fmt.Errorf("encode provider %s: %w", rec.Provider.Hex(), err)
	}
	return data, nil
}

// DecodeProvider deserializes a provider record.
func DecodeProvider(data []byte) (interfaces.ProviderRecord, error) {
	var rec interfaces.ProviderRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return interfaces.ProviderRecord{}, fmt.Errorf("decode provider: %w", err)
	}
	return rec, nil
}

// EncodeIdentity serializes an address.
func EncodeIdentity(id interfaces.Identity) []byte {
	out := make([]byte, len(id))
	copy(out, id[:])
	return out
}

// DecodeIdentity deserializes an address written by EncodeIdentity.
func DecodeIdentity(data []byte) (interfaces.Identity, error) {
	if len(data) != len(interfaces.Identity{}) {
		return interfaces.Identity{}, fmt.Errorf("decode identity: invalid length %d", len(data))
	}
	var id interfaces.Identity
	copy(id[:], data)
	return id, nil
}

// EncodeUint64 serializes a counter or height value.
func EncodeUint64(v uint64) []byte {
	data, _ := rlp.EncodeToBytes(v)
	return data
}

// DecodeUint64 deserializes a value written by EncodeUint64.
func DecodeUint64(data []byte) (uint64, error) {
	var v uint64
	if err := rlp.DecodeBytes(data, &v); err != nil {
		return 0, fmt.Errorf("decode uint64: %w", err)
	}
	return v, nil
}
