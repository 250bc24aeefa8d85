// Package circuit defines the preimage-knowledge circuit and the registry
// that maps circuit sources to their definitions.
package circuit

import (
	"github.com/consensys/gnark/frontend"
)

// PreimageCircuit proves knowledge of four secret limbs whose packed sha256
// equals Hash, and binds the proof to Address by exposing the packed sha256
// of (Address[0], Address[1], 0, 0) as AddressHash.
//
// Public witness order: Hash[0], Hash[1], Address[0], Address[1],
// AddressHash[0], AddressHash[1].
type PreimageCircuit struct {
	Secret      [4]frontend.Variable
	Hash        [2]frontend.Variable `gnark:",public"`
	Address     [2]frontend.Variable `gnark:",public"`
	AddressHash [2]frontend.Variable `gnark:",public"`
}

// Define implements frontend.Circuit.
func (c *PreimageCircuit) Define(api frontend.API) error {
	h, err := PackedSHA256(api, c.Secret)
	if err != nil {
		return err
	}
	api.AssertIsEqual(h[0], c.Hash[0])
	api.AssertIsEqual(h[1], c.Hash[1])

	o, err := PackedSHA256(api, [4]frontend.Variable{c.Address[0], c.Address[1], 0, 0})
	if err != nil {
		return err
	}
	api.AssertIsEqual(o[0], c.AddressHash[0])
	api.AssertIsEqual(o[1], c.AddressHash[1])
	return nil
}
