package ledger

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrInvalidAddress  = errors.New("invalid ss58 address")
	ErrAddressChecksum = errors.New("ss58 checksum mismatch")
)

var ss58Prefix = []byte("SS58PRE")

const (
	accountIDLen    = 32
	checksumLen     = 2
	maxSimplePrefix = 63
)

// DecodeAddress parses an SS58 account address and returns its network
// prefix and 32-byte account id.
func DecodeAddress(addr string) (uint16, []byte, error) {
	raw := base58.Decode(addr)
	if len(raw) == 0 {
		return 0, nil, ErrInvalidAddress
	}

	var prefix uint16
	var prefixLen int
	switch {
	case raw[0] <= maxSimplePrefix:
		prefix = uint16(raw[0])
		prefixLen = 1
	case raw[0] < 128 && len(raw) > 1:
		lower := (raw[0]&0x3f)<<2 | raw[1]>>6
		upper := raw[1] & 0x3f
		prefix = uint16(lower) | uint16(upper)<<8
		prefixLen = 2
	default:
		return 0, nil, ErrInvalidAddress
	}

	if len(raw) != prefixLen+accountIDLen+checksumLen {
		return 0, nil, ErrInvalidAddress
	}
	body := raw[:len(raw)-checksumLen]
	sum := checksum(body)
	if !bytes.Equal(sum, raw[len(raw)-checksumLen:]) {
		return 0, nil, ErrAddressChecksum
	}
	return prefix, body[prefixLen:], nil
}

// EncodeAddress renders a 32-byte account id under a simple (< 64) prefix.
func EncodeAddress(prefix uint8, accountID []byte) (string, error) {
	if prefix > maxSimplePrefix || len(accountID) != accountIDLen {
		return "", ErrInvalidAddress
	}
	body := append([]byte{prefix}, accountID...)
	return base58.Encode(append(body, checksum(body)...)), nil
}

func ValidateAddress(addr string) error {
	_, _, err := DecodeAddress(addr)
	return err
}

func checksum(body []byte) []byte {
	h := blake2b.Sum512(append(append([]byte{}, ss58Prefix...), body...))
	return h[:checksumLen]
}
