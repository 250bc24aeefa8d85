// Package artifact holds the persisted shapes of the proof lifecycle:
// compiled programs, keypairs, proofs and verifier sources, together with
// their JSON wire encoding and the stores that keep them.
package artifact

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrDeserialization reports a corrupted or incomplete persisted artifact.
	ErrDeserialization = errors.New("deserialization error")
	// ErrNotFound is returned by stores for missing entries.
	ErrNotFound = errors.New("artifact not found")
)

// Param describes one circuit input or output in the ABI.
type Param struct {
	Name   string `json:"name"`
	Public bool   `json:"public"`
	Type   string `json:"type"`
}

// ABI lists a circuit's inputs in witness order followed by its outputs.
type ABI struct {
	Circuit string  `json:"circuit"`
	Inputs  []Param `json:"inputs"`
	Outputs []Param `json:"outputs"`
}

// PublicInputs counts the public entries of Inputs.
func (a ABI) PublicInputs() int {
	n := 0
	for _, p := range a.Inputs {
		if p.Public {
			n++
		}
	}
	return n
}

// Artifacts is a compiled circuit. Alternate carries the program compiled for
// a second backend when one exists.
type Artifacts struct {
	Program         []byte
	ABI             ABI
	Alternate       []byte
	ConstraintCount int
}

// SerializedArtifacts is the artifacts.json shape.
type SerializedArtifacts struct {
	Program         string            `json:"program"`
	ABI             *ABI              `json:"abi"`
	Snarkjs         *SerializedBinary `json:"snarkjs,omitempty"`
	ConstraintCount int               `json:"constraintCount"`
}

// SerializedBinary wraps an alternate backend's program.
type SerializedBinary struct {
	Program string `json:"program"`
}

// SerializeArtifacts base64-encodes the program bytes.
func SerializeArtifacts(a *Artifacts) (*SerializedArtifacts, error) {
	if a == nil || len(a.Program) == 0 {
		return nil, fmt.Errorf("serialize artifacts: empty program")
	}
	abi := a.ABI
	s := &SerializedArtifacts{
		Program:         base64.StdEncoding.EncodeToString(a.Program),
		ABI:             &abi,
		ConstraintCount: a.ConstraintCount,
	}
	if len(a.Alternate) > 0 {
		s.Snarkjs = &SerializedBinary{Program: base64.StdEncoding.EncodeToString(a.Alternate)}
	}
	return s, nil
}

// DeserializeArtifacts is the inverse of SerializeArtifacts.
func DeserializeArtifacts(s *SerializedArtifacts) (*Artifacts, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil artifacts", ErrDeserialization)
	}
	if s.Program == "" {
		return nil, fmt.Errorf("%w: artifacts: missing program", ErrDeserialization)
	}
	if s.ABI == nil {
		return nil, fmt.Errorf("%w: artifacts: missing abi", ErrDeserialization)
	}
	program, err := base64.StdEncoding.DecodeString(s.Program)
	if err != nil {
		return nil, fmt.Errorf("%w: artifacts program: %v", ErrDeserialization, err)
	}
	a := &Artifacts{
		Program:         program,
		ABI:             *s.ABI,
		ConstraintCount: s.ConstraintCount,
	}
	if s.Snarkjs != nil {
		if s.Snarkjs.Program == "" {
			return nil, fmt.Errorf("%w: artifacts: snarkjs entry without program", ErrDeserialization)
		}
		if a.Alternate, err = base64.StdEncoding.DecodeString(s.Snarkjs.Program); err != nil {
			return nil, fmt.Errorf("%w: snarkjs program: %v", ErrDeserialization, err)
		}
	}
	return a, nil
}

// Keypair is the output of trusted setup. VK is a tree with binary leaves; PK
// is an opaque blob that never reaches the verifier path.
type Keypair struct {
	VK Node
	PK []byte
}

// SerializedKeypair is the keypair.json shape.
type SerializedKeypair struct {
	VK json.RawMessage `json:"vk"`
	PK string          `json:"pk"`
}

// SerializeKeypair tags binary leaves of the VK tree and base64-encodes the PK.
func SerializeKeypair(k *Keypair) (*SerializedKeypair, error) {
	if k == nil {
		return nil, fmt.Errorf("serialize keypair: nil keypair")
	}
	if err := k.VK.Validate(); err != nil {
		return nil, fmt.Errorf("serialize keypair: vk: %w", err)
	}
	vk, err := k.VK.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("serialize keypair: %w", err)
	}
	return &SerializedKeypair{VK: vk, PK: base64.StdEncoding.EncodeToString(k.PK)}, nil
}

// DeserializeKeypair is the inverse of SerializeKeypair.
func DeserializeKeypair(s *SerializedKeypair) (*Keypair, error) {
	if s == nil || len(s.VK) == 0 {
		return nil, fmt.Errorf("%w: keypair: missing vk", ErrDeserialization)
	}
	var vk Node
	if err := vk.UnmarshalJSON(s.VK); err != nil {
		return nil, err
	}
	pk, err := base64.StdEncoding.DecodeString(s.PK)
	if err != nil {
		return nil, fmt.Errorf("%w: keypair pk: %v", ErrDeserialization, err)
	}
	return &Keypair{VK: vk, PK: pk}, nil
}
