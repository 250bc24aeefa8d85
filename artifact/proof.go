package artifact

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// G1 is an affine point as two 0x-prefixed 32-byte hex coordinates.
type G1 [2]string

// G2 is an affine point over the quadratic extension, each coordinate given
// as (A1, A0) in the order expected by the EVM pairing precompile.
type G2 [2][2]string

// Points is the solidity-ready form of a groth16 proof.
type Points struct {
	A             G1   `json:"a"`
	B             G2   `json:"b"`
	C             G1   `json:"c"`
	Commitments   []G1 `json:"commitments,omitempty"`
	CommitmentPok *G1  `json:"commitmentPok,omitempty"`
}

// Proof is the proof.json shape: the proof points, the public inputs in
// circuit order and the backend's own serialization.
type Proof struct {
	Scheme string   `json:"scheme"`
	Curve  string   `json:"curve"`
	Points Points   `json:"proof"`
	Inputs []string `json:"inputs"`
	Raw    []byte   `json:"raw"`
}

// Fingerprint identifies a proof by the keccak256 of its raw bytes. Two
// valid groth16 proofs of one statement can differ in every byte, so the
// fingerprint names an encoding, not the statement.
func (p *Proof) Fingerprint() common.Hash {
	return crypto.Keccak256Hash(p.Raw)
}
