package engine

import (
	"zerokey/artifact"
)

// Backend is the proving system the engine drives. Implementations need not
// be safe for concurrent use; the engine serializes calls.
type Backend interface {
	// Init checks the backend can serve requests.
	Init() error
	Compile(source string) (*artifact.Artifacts, error)
	ComputeWitness(a *artifact.Artifacts, inputs []string) (*Witness, error)
	Setup(a *artifact.Artifacts) (*artifact.Keypair, error)
	GenerateProof(a *artifact.Artifacts, w *Witness, provingKey []byte) (*artifact.Proof, error)
	// Verify returns false, nil when the proof does not check out.
	Verify(vk artifact.Node, p *artifact.Proof) (bool, error)
	ExportSolidityVerifier(vk artifact.Node) (string, error)
}

// Witness is a solved assignment for one program.
type Witness struct {
	Circuit     string
	ProgramHash [32]byte
	// Data is the backend's encoding of the full assignment.
	Data []byte
	// Public holds the public inputs followed by the outputs, in decimal.
	Public []string
	Output []string
}
