package ledger

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"fmt"
)

const (
	publicKeySize = 32
	checksumSize  = 4
)

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeAddress renders a 32-byte public key as a checksummed base32 address.
func EncodeAddress(publicKey []byte) (string, error) {
	if len(publicKey) != publicKeySize {
		return "", fmt.Errorf("public key must be %d bytes, got %d", publicKeySize, len(publicKey))
	}
	sum := sha512.Sum512_256(publicKey)
	raw := make([]byte, 0, publicKeySize+checksumSize)
	raw = append(raw, publicKey...)
	raw = append(raw, sum[len(sum)-checksumSize:]...)
	return addressEncoding.EncodeToString(raw), nil
}

// DecodeAddress returns the public key behind an address and verifies its checksum.
func DecodeAddress(address string) ([]byte, error) {
	raw, err := addressEncoding.DecodeString(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if len(raw) != publicKeySize+checksumSize {
		return nil, fmt.Errorf("invalid address %q: wrong length", address)
	}
	key := raw[:publicKeySize]
	sum := sha512.Sum512_256(key)
	if !bytes.Equal(sum[len(sum)-checksumSize:], raw[publicKeySize:]) {
		return nil, fmt.Errorf("invalid address %q: checksum mismatch", address)
	}
	return key, nil
}

// ValidAddress reports whether address decodes with a correct checksum.
func ValidAddress(address string) bool {
	_, err := DecodeAddress(address)
	return err == nil
}

// ApplicationAddress derives the escrow account of a registry instance.
func ApplicationAddress(appID uint64) string {
	buf := make([]byte, 0, 5+8)
	buf = append(buf, "appID"...)
	buf = binary.BigEndian.AppendUint64(buf, appID)
	digest := sha512.Sum512_256(buf)
	addr, _ := EncodeAddress(digest[:])
	return addr
}
