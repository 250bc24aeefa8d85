package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"zerokey/artifact"
	"zerokey/circuit"
	"zerokey/internal/logging"
)

func BenchmarkPreimage(b *testing.B) {
	defer logging.SilenceGnark()()
	ctx := context.Background()
	e := New(NewGroth16Backend(zerolog.Nop()))
	if err := e.Initialize(ctx); err != nil {
		b.Fatalf("initialize: %v", err)
	}
	a, err := e.Compile(ctx, circuit.PreimageV1)
	if err != nil {
		b.Fatalf("failed to compile: %v", err)
	}
	inputs := proofInputs(b, sampleSecret, sampleAddress)

	var k *artifact.Keypair
	b.Run("Groth16/Setup", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			// bypass the engine cache so every iteration runs setup
			k, err = e.backend.Setup(a)
			if err != nil {
				b.Fatalf("failed to setup: %v", err)
			}
		}
	})

	var w *Witness
	b.Run("WitnessCreation", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			w, err = e.ComputeWitness(ctx, a, inputs)
			if err != nil {
				b.Fatalf("failed to create witness: %v", err)
			}
		}
	})

	var p *artifact.Proof
	b.Run("Groth16/Prove", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			p, err = e.GenerateProof(ctx, a, w, k.PK)
			if err != nil {
				b.Fatalf("failed to prove: %v", err)
			}
		}
	})

	b.Run("Groth16/Verify", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			ok, err := e.Verify(ctx, k.VK, p)
			if err != nil || !ok {
				b.Fatalf("failed to verify: %v", err)
			}
		}
	})
}
