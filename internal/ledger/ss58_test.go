package ledger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAddress(t *testing.T) {
	tests := []struct {
		name      string
		addr      string
		expPrefix uint16
		expError  error
	}{
		{name: "alice generic", addr: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", expPrefix: 42},
		{name: "bob generic", addr: "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty", expPrefix: 42},
		{name: "checksum broken", addr: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ", expError: ErrAddressChecksum},
		{name: "not base58", addr: "0OIl", expError: ErrInvalidAddress},
		{name: "too short", addr: "5Grwva", expError: ErrInvalidAddress},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			prefix, id, err := DecodeAddress(test.addr)
			if test.expError != nil {
				assert.ErrorIs(t, err, test.expError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expPrefix, prefix)
			assert.Len(t, id, 32)
		})
	}
}

func TestEncodeAddressRoundTrip(t *testing.T) {
	id := bytes.Repeat([]byte{0xab}, 32)

	addr, err := EncodeAddress(0, id)
	require.NoError(t, err)

	prefix, decoded, err := DecodeAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), prefix)
	assert.Equal(t, id, decoded)

	_, err = EncodeAddress(64, id)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
