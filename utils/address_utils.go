package utils

import (
	"encoding/hex"
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// HexStringToAddress converts a hex string (with or without the "0x" prefix) to a common.Address. Returns the parsed
// address, or an error if one occurs during conversion.
func HexStringToAddress(s string) (*common.Address, error) {
	// Remove the 0x prefix and decode the hex string into a byte array
	b, err := DecodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(b) > common.AddressLength {
		return nil, errors.Errorf("%q is longer than an address", s)
	}

	// Parse the bytes as an address and return them.
	address := common.Address{}
	address.SetBytes(b)
	return &address, nil
}

// DecodeHex decodes a hex string with or without the "0x" prefix. An odd number of digits is padded with a leading
// zero.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}
