package engine

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	curve "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/solidity"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"zerokey/artifact"
	"zerokey/circuit"
	"zerokey/fieldcodec"
)

// Fields of the verification-key tree written by Groth16Backend.
const (
	vkCircuit     = "circuit"
	vkProgramHash = "program_hash"
	vkRaw         = "raw"
)

const (
	schemeGroth16 = "groth16"
	curveBN254    = "bn254"
)

// Groth16Backend proves R1CS circuits from the circuit registry with gnark's
// groth16 on BN254. Proofs and verifiers target the EVM: commitments are
// hashed with keccak256 so the exported contract accepts them.
type Groth16Backend struct {
	logger zerolog.Logger

	mu  sync.Mutex
	css map[[32]byte]constraint.ConstraintSystem
	pks map[[32]byte]groth16.ProvingKey
	vks map[[32]byte]groth16.VerifyingKey
}

// NewGroth16Backend returns a backend with empty decode caches.
func NewGroth16Backend(logger zerolog.Logger) *Groth16Backend {
	return &Groth16Backend{
		logger: logger.With().Str("component", "groth16").Logger(),
		css:    make(map[[32]byte]constraint.ConstraintSystem),
		pks:    make(map[[32]byte]groth16.ProvingKey),
		vks:    make(map[[32]byte]groth16.VerifyingKey),
	}
}

func (b *Groth16Backend) Init() error {
	if !ecc.BN254.ScalarField().ProbablyPrime(0) {
		return fmt.Errorf("%w: bn254 scalar field unavailable", ErrBackendUnavailable)
	}
	return nil
}

// ProgramHash identifies a compiled program.
func ProgramHash(a *artifact.Artifacts) [32]byte {
	return sha256.Sum256(a.Program)
}

func (b *Groth16Backend) Compile(source string) (*artifact.Artifacts, error) {
	def, err := circuit.Lookup(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompilation, err)
	}
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, def.New())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompilation, err)
	}
	var buf bytes.Buffer
	if _, err := cs.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize program: %v", ErrCompilation, err)
	}
	a := &artifact.Artifacts{
		Program:         buf.Bytes(),
		ABI:             def.ABI,
		ConstraintCount: cs.GetNbConstraints(),
	}
	b.mu.Lock()
	b.css[ProgramHash(a)] = cs
	b.mu.Unlock()
	b.logger.Debug().Str("source", source).Int("constraints", a.ConstraintCount).Msg("compiled")
	return a, nil
}

func (b *Groth16Backend) program(a *artifact.Artifacts) (constraint.ConstraintSystem, error) {
	key := ProgramHash(a)
	b.mu.Lock()
	defer b.mu.Unlock()
	if cs, ok := b.css[key]; ok {
		return cs, nil
	}
	cs := groth16.NewCS(ecc.BN254)
	if _, err := cs.ReadFrom(bytes.NewReader(a.Program)); err != nil {
		return nil, fmt.Errorf("%w: decode program: %v", artifact.ErrDeserialization, err)
	}
	b.css[key] = cs
	return cs, nil
}

func (b *Groth16Backend) provingKey(raw []byte) (groth16.ProvingKey, error) {
	key := sha256.Sum256(raw)
	b.mu.Lock()
	defer b.mu.Unlock()
	if pk, ok := b.pks[key]; ok {
		return pk, nil
	}
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: decode proving key: %v", artifact.ErrDeserialization, err)
	}
	b.pks[key] = pk
	return pk, nil
}

func (b *Groth16Backend) verifyingKey(tree artifact.Node) (groth16.VerifyingKey, circuit.Definition, error) {
	source, err := tree.StringAt(vkCircuit)
	if err != nil {
		return nil, circuit.Definition{}, err
	}
	def, err := circuit.Lookup(source)
	if err != nil {
		return nil, circuit.Definition{}, fmt.Errorf("%w: %v", artifact.ErrDeserialization, err)
	}
	raw, err := tree.BytesAt(vkRaw)
	if err != nil {
		return nil, def, err
	}
	key := sha256.Sum256(raw)
	b.mu.Lock()
	defer b.mu.Unlock()
	if vk, ok := b.vks[key]; ok {
		return vk, def, nil
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, def, fmt.Errorf("%w: decode verifying key: %v", artifact.ErrDeserialization, err)
	}
	b.vks[key] = vk
	return vk, def, nil
}

func (b *Groth16Backend) ComputeWitness(a *artifact.Artifacts, inputs []string) (*Witness, error) {
	def, err := circuit.Lookup(a.ABI.Circuit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWitness, err)
	}
	if len(inputs) != len(def.ABI.Inputs) {
		return nil, fmt.Errorf("%w: %s takes %d inputs, got %d", ErrWitness, def.Source, len(def.ABI.Inputs), len(inputs))
	}
	values := make([]*big.Int, len(inputs))
	for i, s := range inputs {
		v, err := fieldcodec.ParseFieldElement(s)
		if err != nil {
			return nil, fmt.Errorf("%w: input %s: %v", ErrWitness, def.ABI.Inputs[i].Name, err)
		}
		values[i] = v
	}
	assignment, outputs, err := def.Assign(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWitness, err)
	}
	full, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWitness, err)
	}
	cs, err := b.program(a)
	if err != nil {
		return nil, err
	}
	if err := cs.IsSolved(full); err != nil {
		return nil, fmt.Errorf("%w: constraints not satisfied: %v", ErrWitness, err)
	}
	data, err := full.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: encode witness: %v", ErrWitness, err)
	}

	w := &Witness{Circuit: def.Source, ProgramHash: ProgramHash(a), Data: data}
	for i, p := range def.ABI.Inputs {
		if p.Public {
			w.Public = append(w.Public, inputs[i])
		}
	}
	for _, o := range outputs {
		w.Output = append(w.Output, o.String())
	}
	w.Public = append(w.Public, w.Output...)
	return w, nil
}

func (b *Groth16Backend) Setup(a *artifact.Artifacts) (*artifact.Keypair, error) {
	cs, err := b.program(a)
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("%w: setup: %v", ErrProving, err)
	}
	var pkBuf, vkBuf bytes.Buffer
	if _, err := pk.WriteTo(&pkBuf); err != nil {
		return nil, fmt.Errorf("%w: serialize proving key: %v", ErrProving, err)
	}
	if _, err := vk.WriteTo(&vkBuf); err != nil {
		return nil, fmt.Errorf("%w: serialize verifying key: %v", ErrProving, err)
	}
	hash := ProgramHash(a)
	tree := artifact.Object(map[string]artifact.Node{
		vkCircuit:     artifact.String(a.ABI.Circuit),
		vkProgramHash: artifact.Bytes(hash[:]),
		"scheme":      artifact.String(schemeGroth16),
		"curve":       artifact.String(curveBN254),
		"nPublic":     artifact.Int(int64(vk.NbPublicWitness())),
		vkRaw:         artifact.Bytes(vkBuf.Bytes()),
	})
	if bvk, ok := vk.(*groth16bn254.VerifyingKey); ok {
		ic := make([]artifact.Node, len(bvk.G1.K))
		for i := range bvk.G1.K {
			raw := bvk.G1.K[i].RawBytes()
			ic[i] = artifact.Bytes(raw[:])
		}
		alpha := bvk.G1.Alpha.RawBytes()
		beta := bvk.G2.Beta.RawBytes()
		gamma := bvk.G2.Gamma.RawBytes()
		delta := bvk.G2.Delta.RawBytes()
		tree.Fields["points"] = artifact.Object(map[string]artifact.Node{
			"alpha": artifact.Bytes(alpha[:]),
			"beta":  artifact.Bytes(beta[:]),
			"gamma": artifact.Bytes(gamma[:]),
			"delta": artifact.Bytes(delta[:]),
			"ic":    artifact.Array(ic...),
		})
	}

	b.mu.Lock()
	b.pks[sha256.Sum256(pkBuf.Bytes())] = pk
	b.vks[sha256.Sum256(vkBuf.Bytes())] = vk
	b.mu.Unlock()
	b.logger.Debug().Int("pk_bytes", pkBuf.Len()).Int("vk_bytes", vkBuf.Len()).Msg("setup done")
	return &artifact.Keypair{VK: tree, PK: pkBuf.Bytes()}, nil
}

func (b *Groth16Backend) GenerateProof(a *artifact.Artifacts, w *Witness, provingKey []byte) (*artifact.Proof, error) {
	if w.ProgramHash != ProgramHash(a) {
		return nil, fmt.Errorf("%w: witness was computed for another program", ErrWitness)
	}
	cs, err := b.program(a)
	if err != nil {
		return nil, err
	}
	pk, err := b.provingKey(provingKey)
	if err != nil {
		return nil, err
	}
	full, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProving, err)
	}
	if err := full.UnmarshalBinary(w.Data); err != nil {
		return nil, fmt.Errorf("%w: decode witness: %v", ErrWitness, err)
	}
	proof, err := groth16.Prove(cs, pk, full, solidity.WithProverTargetSolidityVerifier(backend.GROTH16))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProving, err)
	}
	var raw bytes.Buffer
	if _, err := proof.WriteTo(&raw); err != nil {
		return nil, fmt.Errorf("%w: serialize proof: %v", ErrProving, err)
	}
	out := &artifact.Proof{
		Scheme: schemeGroth16,
		Curve:  curveBN254,
		Inputs: append([]string(nil), w.Public...),
		Raw:    raw.Bytes(),
	}
	if bp, ok := proof.(*groth16bn254.Proof); ok {
		out.Points = solidityPoints(bp)
	}
	return out, nil
}

func (b *Groth16Backend) Verify(tree artifact.Node, p *artifact.Proof) (bool, error) {
	vk, def, err := b.verifyingKey(tree)
	if err != nil {
		return false, err
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(p.Raw)); err != nil {
		return false, fmt.Errorf("%w: decode proof: %v", artifact.ErrDeserialization, err)
	}
	if len(p.Inputs) != def.NbPublic() {
		b.logger.Debug().Int("inputs", len(p.Inputs)).Msg("public input count mismatch")
		return false, nil
	}
	values := make([]*big.Int, len(p.Inputs))
	for i, s := range p.Inputs {
		v, err := fieldcodec.ParseFieldElement(s)
		if err != nil {
			b.logger.Debug().Err(err).Int("index", i).Msg("bad public input")
			return false, nil
		}
		values[i] = v
	}
	assignment, err := def.Public(values)
	if err != nil {
		return false, nil
	}
	public, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("public witness: %w", err)
	}
	if err := groth16.Verify(proof, vk, public, solidity.WithVerifierTargetSolidityVerifier(backend.GROTH16)); err != nil {
		b.logger.Debug().Err(err).Msg("verification failed")
		return false, nil
	}
	return true, nil
}

func (b *Groth16Backend) ExportSolidityVerifier(tree artifact.Node) (string, error) {
	vk, _, err := b.verifyingKey(tree)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := vk.ExportSolidity(&buf); err != nil {
		return "", fmt.Errorf("export verifier: %w", err)
	}
	return buf.String(), nil
}

func g1Hex(p *curve.G1Affine) artifact.G1 {
	return artifact.G1{
		common.BigToHash(p.X.BigInt(new(big.Int))).Hex(),
		common.BigToHash(p.Y.BigInt(new(big.Int))).Hex(),
	}
}

// g2Hex orders each coordinate (A1, A0) as the EVM pairing precompile does.
func g2Hex(p *curve.G2Affine) artifact.G2 {
	h := func(x interface{ BigInt(*big.Int) *big.Int }) string {
		return common.BigToHash(x.BigInt(new(big.Int))).Hex()
	}
	return artifact.G2{
		{h(&p.X.A1), h(&p.X.A0)},
		{h(&p.Y.A1), h(&p.Y.A0)},
	}
}

func solidityPoints(p *groth16bn254.Proof) artifact.Points {
	pts := artifact.Points{
		A: g1Hex(&p.Ar),
		B: g2Hex(&p.Bs),
		C: g1Hex(&p.Krs),
	}
	if len(p.Commitments) > 0 {
		for i := range p.Commitments {
			pts.Commitments = append(pts.Commitments, g1Hex(&p.Commitments[i]))
		}
		pok := g1Hex(&p.CommitmentPok)
		pts.CommitmentPok = &pok
	}
	return pts
}

// isDeserialization reports whether err came from decoding stored bytes.
func isDeserialization(err error) bool {
	return errors.Is(err, artifact.ErrDeserialization)
}
