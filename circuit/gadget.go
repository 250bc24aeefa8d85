package circuit

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/sha2"
	"github.com/consensys/gnark/std/math/uints"
)

// LimbBits is the width of every limb fed to PackedSHA256.
const LimbBits = 128

// PackedSHA256 hashes four 128-bit limbs laid out as 64 big-endian bytes and
// returns the 32-byte digest as two 128-bit limbs, most significant first.
// Each limb is range-checked to 128 bits by its binary decomposition.
func PackedSHA256(api frontend.API, limbs [4]frontend.Variable) ([2]frontend.Variable, error) {
	uapi, err := uints.New[uints.U32](api)
	if err != nil {
		return [2]frontend.Variable{}, fmt.Errorf("uints: %w", err)
	}
	hasher, err := sha2.New(api)
	if err != nil {
		return [2]frontend.Variable{}, fmt.Errorf("sha2: %w", err)
	}

	buf := make([]uints.U8, 0, 4*LimbBits/8)
	for _, l := range limbs {
		buf = append(buf, limbToBytes(api, uapi, l)...)
	}
	hasher.Write(buf)
	sum := hasher.Sum()

	var out [2]frontend.Variable
	for i := range out {
		out[i] = bytesToVariable(api, sum[i*LimbBits/8:(i+1)*LimbBits/8])
	}
	return out, nil
}

// limbToBytes decomposes v into 16 big-endian bytes.
func limbToBytes(api frontend.API, uapi *uints.BinaryField[uints.U32], v frontend.Variable) []uints.U8 {
	const n = LimbBits / 8
	bits := api.ToBinary(v, LimbBits)
	out := make([]uints.U8, n)
	for i := 0; i < n; i++ {
		out[i] = uapi.ByteValueOf(api.FromBinary(bits[(n-1-i)*8 : (n-i)*8]...))
	}
	return out
}

// bytesToVariable recomposes big-endian bytes into one field element.
func bytesToVariable(api frontend.API, b []uints.U8) frontend.Variable {
	acc := frontend.Variable(0)
	for _, x := range b {
		acc = api.Add(api.Mul(acc, 256), x.Val)
	}
	return acc
}
