// Package evidence computes and checks the content identifiers projects use
// to reference their supporting documents.
package evidence

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrEmpty     = errors.New("evidence reference is empty")
	ErrMalformed = errors.New("evidence reference is malformed")
)

// Info describes a parsed content identifier.
type Info struct {
	CID      string `json:"cid"`
	Version  uint64 `json:"version"`
	Codec    uint64 `json:"codec"`
	HashCode uint64 `json:"hash_code"`
	HashName string `json:"hash_name"`
}

// Reference returns the CIDv1 (raw codec, sha2-256) of data.
func Reference(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash evidence: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// Validate checks ref. In lenient mode any non-blank token without
// whitespace is accepted; strict mode also requires a parsable CID.
func Validate(ref string, strict bool) error {
	if strings.TrimSpace(ref) == "" {
		return ErrEmpty
	}
	if strings.IndexFunc(ref, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: contains whitespace", ErrMalformed)
	}
	if !strict {
		return nil
	}
	if _, err := Inspect(ref); err != nil {
		return err
	}
	return nil
}

// Inspect parses ref as a CID.
func Inspect(ref string) (*Info, error) {
	c, err := cid.Decode(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	prefix := c.Prefix()
	return &Info{
		CID:      c.String(),
		Version:  prefix.Version,
		Codec:    prefix.Codec,
		HashCode: prefix.MhType,
		HashName: multihash.Codes[prefix.MhType],
	}, nil
}

// Matches reports whether ref is the identifier of data, whatever CID
// version or hash function ref was built with.
func Matches(ref string, data []byte) (bool, error) {
	c, err := cid.Decode(ref)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sum, err := c.Prefix().Sum(data)
	if err != nil {
		return false, fmt.Errorf("failed to hash evidence: %w", err)
	}
	return sum.Equals(c), nil
}
