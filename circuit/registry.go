package circuit

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/consensys/gnark/frontend"

	"zerokey/artifact"
	"zerokey/hashpack"
)

// PreimageV1 is the source identifier of PreimageCircuit.
const PreimageV1 = "zerokey.preimage.v1"

// ErrUnknownSource is returned by Lookup for unregistered sources.
var ErrUnknownSource = errors.New("unknown circuit source")

// Definition ties a circuit source to its shape and witness assignment.
type Definition struct {
	Source string
	ABI    artifact.ABI
	// New returns an empty circuit for compilation.
	New func() frontend.Circuit
	// Assign builds a full assignment from the ABI inputs (private first) and
	// returns it with the public outputs it implies.
	Assign func(inputs []*big.Int) (frontend.Circuit, []*big.Int, error)
	// Public builds a public-only assignment from public inputs followed by
	// outputs.
	Public func(values []*big.Int) (frontend.Circuit, error)
}

// NbPublic is the length of the public witness: public inputs plus outputs.
func (d Definition) NbPublic() int {
	return d.ABI.PublicInputs() + len(d.ABI.Outputs)
}

var registry = map[string]Definition{
	PreimageV1: preimageDefinition(),
}

// Lookup returns the definition registered for source.
func Lookup(source string) (Definition, error) {
	d, ok := registry[source]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return d, nil
}

// Sources lists the registered circuit sources.
func Sources() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func field(name string, public bool) artifact.Param {
	return artifact.Param{Name: name, Public: public, Type: "field"}
}

func preimageDefinition() Definition {
	return Definition{
		Source: PreimageV1,
		ABI: artifact.ABI{
			Circuit: PreimageV1,
			Inputs: []artifact.Param{
				field("secret0", false), field("secret1", false), field("secret2", false), field("secret3", false),
				field("hash0", true), field("hash1", true),
				field("address0", true), field("address1", true),
			},
			Outputs: []artifact.Param{field("addressHash0", true), field("addressHash1", true)},
		},
		New: func() frontend.Circuit { return &PreimageCircuit{} },
		Assign: func(in []*big.Int) (frontend.Circuit, []*big.Int, error) {
			if len(in) != 8 {
				return nil, nil, fmt.Errorf("preimage circuit takes 8 inputs, got %d", len(in))
			}
			out := AddressHash(in[6], in[7])
			c := &PreimageCircuit{
				Secret:      [4]frontend.Variable{in[0], in[1], in[2], in[3]},
				Hash:        [2]frontend.Variable{in[4], in[5]},
				Address:     [2]frontend.Variable{in[6], in[7]},
				AddressHash: [2]frontend.Variable{out[0], out[1]},
			}
			return c, []*big.Int{out[0], out[1]}, nil
		},
		Public: func(v []*big.Int) (frontend.Circuit, error) {
			if len(v) != 6 {
				return nil, fmt.Errorf("preimage circuit has 6 public values, got %d", len(v))
			}
			return &PreimageCircuit{
				Secret:      [4]frontend.Variable{0, 0, 0, 0},
				Hash:        [2]frontend.Variable{v[0], v[1]},
				Address:     [2]frontend.Variable{v[2], v[3]},
				AddressHash: [2]frontend.Variable{v[4], v[5]},
			}, nil
		},
	}
}

// AddressHash is the off-circuit value of the circuit output for an address.
func AddressHash(hi, lo *big.Int) [2]*big.Int {
	return hashpack.PackedDigestInts([4]*big.Int{hi, lo, new(big.Int), new(big.Int)})
}
