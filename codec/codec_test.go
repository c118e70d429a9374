package codec

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEquipmentEncodingIsCanonical(t *testing.T) {
	rec := interfaces.EquipmentRecord{
		ID:              7,
		Name:            "Chiller",
		Manufacturer:    "Acme",
		Model:           "C-200",
		SerialNumber:    "SN12345",
		ManufactureDate: 50,
		Owner:           common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}

	a, err := EncodeEquipment(rec)
	require.NoError(t, err)
	b, err := EncodeEquipment(rec)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	decoded, err := DecodeEquipment(a)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestProviderRoundTripKeepsInactiveFlag(t *testing.T) {
	rec := interfaces.ProviderRecord{
		Provider:            common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Name:                "Acme",
		Certification:       "CertA",
		Specialization:      "HVAC",
		CertificationExpiry: 500,
		IsActive:            false,
	}

	data, err := EncodeProvider(rec)
	require.NoError(t, err)

	decoded, err := DecodeProvider(data)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeEquipment([]byte{0xff, 0x00})
	assert.Error(t, err)

	_, err = DecodeIdentity([]byte{1, 2, 3})
	assert.Error(t, err)
}
