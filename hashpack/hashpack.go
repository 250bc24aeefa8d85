// Package hashpack is the off-circuit reference of the packed sha256 gadget:
// four 128-bit limbs laid out as 64 big-endian bytes, hashed with sha256 and
// split back into two 128-bit limbs.
package hashpack

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"zerokey/fieldcodec"
)

// PackedDigest masks each decimal input to 128 bits and returns the packed
// sha256 digest as two decimal limbs, most significant first.
func PackedDigest(a, b, c, d string) ([2]string, error) {
	var ints [4]*big.Int
	for i, s := range [4]string{a, b, c, d} {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok || v.Sign() < 0 {
			return [2]string{}, fmt.Errorf("%w: limb %d %q is not a non-negative decimal", fieldcodec.ErrEncoding, i, s)
		}
		ints[i] = v
	}
	out := PackedDigestInts(ints)
	return [2]string{out[0].String(), out[1].String()}, nil
}

// PackedDigestInts is PackedDigest over big integers.
func PackedDigestInts(limbs [4]*big.Int) [2]*big.Int {
	sum := Sum(limbs)
	return [2]*big.Int{
		new(big.Int).SetBytes(sum[:fieldcodec.LimbBytes]),
		new(big.Int).SetBytes(sum[fieldcodec.LimbBytes:]),
	}
}

// Sum returns the raw sha256 over the packed 64-byte buffer.
func Sum(limbs [4]*big.Int) [32]byte {
	var buf [4 * fieldcodec.LimbBytes]byte
	for i, l := range limbs {
		b := fieldcodec.LimbBytesOf(l)
		copy(buf[i*fieldcodec.LimbBytes:], b[:])
	}
	return sha256.Sum256(buf[:])
}

// Commitment joins two digest limbs into the 32-byte value stored on-chain.
func Commitment(limbs [2]string) ([32]byte, error) {
	var out [32]byte
	for i, s := range limbs {
		v, err := fieldcodec.ParseLimb(s)
		if err != nil {
			return out, err
		}
		v.FillBytes(out[i*fieldcodec.LimbBytes : (i+1)*fieldcodec.LimbBytes])
	}
	return out, nil
}

// SecretCommitment is the packed digest of the secret's sha512 limbs. It
// equals sha256(sha512(secret)).
func SecretCommitment(secret string) (digest [2]string, commitment [32]byte, err error) {
	limbs, err := fieldcodec.HashToLimbs(secret)
	if err != nil {
		return digest, commitment, err
	}
	digest, err = PackedDigest(limbs[0], limbs[1], limbs[2], limbs[3])
	if err != nil {
		return digest, commitment, err
	}
	commitment, err = Commitment(digest)
	return digest, commitment, err
}
