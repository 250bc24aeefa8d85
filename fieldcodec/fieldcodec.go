// Package fieldcodec turns secrets and addresses into decimal field elements
// that fit the preimage circuit's 128-bit limbs.
package fieldcodec

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// LimbBytes is the width of one limb in bytes.
	LimbBytes = 16
	// DigestBytes is the length of a secret digest (sha512).
	DigestBytes = 64
	// AddressHexLen is the number of hex digits in an address, without prefix.
	AddressHexLen = 40
)

// ErrEncoding reports a malformed secret digest, address or field element.
var ErrEncoding = errors.New("encoding error")

var (
	limbBound = new(big.Int).Lsh(big.NewInt(1), 8*LimbBytes)
	modulus   = ecc.BN254.ScalarField()
)

// Modulus returns a copy of the scalar field modulus used by the circuit.
func Modulus() *big.Int { return new(big.Int).Set(modulus) }

// HashToLimbs hashes the UTF-8 bytes of secret with sha512 and returns the
// digest as four decimal limbs, most significant first.
func HashToLimbs(secret string) ([4]string, error) {
	digest := sha512.Sum512([]byte(secret))
	return DigestToLimbs(digest[:])
}

// DigestToLimbs splits a 64-byte digest into four big-endian 16-byte limbs.
func DigestToLimbs(digest []byte) ([4]string, error) {
	var out [4]string
	if len(digest) != DigestBytes {
		return out, fmt.Errorf("%w: digest must be %d bytes, got %d", ErrEncoding, DigestBytes, len(digest))
	}
	for i := range out {
		out[i] = new(big.Int).SetBytes(digest[i*LimbBytes : (i+1)*LimbBytes]).String()
	}
	return out, nil
}

// AddressToLimbs left-pads a 160-bit hex address to 256 bits and returns its
// (high, low) 128-bit halves in decimal. The 0x prefix is optional.
func AddressToLimbs(address string) ([2]string, error) {
	var out [2]string
	hexDigits := trimHexPrefix(address)
	if len(hexDigits) != AddressHexLen {
		return out, fmt.Errorf("%w: address must have %d hex digits, got %d", ErrEncoding, AddressHexLen, len(hexDigits))
	}
	if !common.IsHexAddress(hexDigits) {
		return out, fmt.Errorf("%w: address %q is not hex", ErrEncoding, address)
	}
	addr := common.HexToAddress(hexDigits)

	var padded [2 * LimbBytes]byte
	copy(padded[len(padded)-common.AddressLength:], addr.Bytes())
	out[0] = new(big.Int).SetBytes(padded[:LimbBytes]).String()
	out[1] = new(big.Int).SetBytes(padded[LimbBytes:]).String()
	return out, nil
}

// LimbsToAddress reverses AddressToLimbs.
func LimbsToAddress(limbs [2]string) (common.Address, error) {
	var addr common.Address
	hi, err := ParseLimb(limbs[0])
	if err != nil {
		return addr, err
	}
	lo, err := ParseLimb(limbs[1])
	if err != nil {
		return addr, err
	}
	if hi.BitLen() > 8*(common.AddressLength-LimbBytes) {
		return addr, fmt.Errorf("%w: high limb exceeds address width", ErrEncoding)
	}
	var padded [2 * LimbBytes]byte
	hi.FillBytes(padded[:LimbBytes])
	lo.FillBytes(padded[LimbBytes:])
	return common.BytesToAddress(padded[:]), nil
}

// ParseFieldElement parses a canonical decimal field element: no sign, no
// leading zeros and strictly below the field modulus.
func ParseFieldElement(s string) (*big.Int, error) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return nil, fmt.Errorf("%w: %q is not a canonical decimal", ErrEncoding, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q is not a canonical decimal", ErrEncoding, s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a canonical decimal", ErrEncoding, s)
	}
	if v.Cmp(modulus) >= 0 {
		return nil, fmt.Errorf("%w: %s is not below the field modulus", ErrEncoding, s)
	}
	return v, nil
}

// ParseLimb is ParseFieldElement restricted to values below 2^128.
func ParseLimb(s string) (*big.Int, error) {
	v, err := ParseFieldElement(s)
	if err != nil {
		return nil, err
	}
	if v.Cmp(limbBound) >= 0 {
		return nil, fmt.Errorf("%w: %s does not fit in %d bits", ErrEncoding, s, 8*LimbBytes)
	}
	return v, nil
}

// Mask128 returns the low 128 bits of v.
func Mask128(v *big.Int) *big.Int {
	mask := new(big.Int).Sub(limbBound, big.NewInt(1))
	return new(big.Int).And(v, mask)
}

// LimbBytesOf writes the 16-byte big-endian encoding of the low 128 bits of v.
func LimbBytesOf(v *big.Int) [LimbBytes]byte {
	var out [LimbBytes]byte
	Mask128(v).FillBytes(out[:])
	return out
}

func trimHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
