package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"zerokey/artifact"
	"zerokey/fieldcodec"
	"zerokey/hashpack"
	"zerokey/internal/config"
	"zerokey/recovery"
)

// secretFlags collects the secret either raw or as question=answer pairs.
type secretFlags struct {
	secret string
	pairs  []string
}

func (s *secretFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.secret, "secret", "", "raw secret string")
	cmd.Flags().StringArrayVar(&s.pairs, "qa", nil, `security "question=answer" pair, repeat in order`)
}

func (s *secretFlags) resolve() (string, error) {
	if s.secret != "" {
		if len(s.pairs) > 0 {
			return "", fmt.Errorf("--secret and --qa are exclusive")
		}
		return s.secret, nil
	}
	answers, err := parsePairs(s.pairs)
	if err != nil {
		return "", err
	}
	return recovery.SerializeQuestionsAndAnswers(answers)
}

func parsePairs(pairs []string) ([]recovery.Answer, error) {
	out := make([]recovery.Answer, 0, len(pairs))
	for _, p := range pairs {
		q, a, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not question=answer", recovery.ErrInvalidAnswers, p)
		}
		out = append(out, recovery.Answer{Question: q, Answer: a})
	}
	return out, nil
}

func writeOut(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func newSetupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Compile the circuit and generate its groth16 keypair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fmt.Println("▶ Part 1: Compiling circuit...")
			art, err := a.engine.Compile(ctx, a.cfg.Circuit)
			if err != nil {
				return err
			}
			fmt.Printf("  → %d constraints, %d public inputs\n", art.ConstraintCount, art.ABI.PublicInputs())

			fmt.Println("▶ Part 2: Performing trusted setup...")
			if _, err := a.engine.Setup(ctx, art); err != nil {
				return err
			}
			fmt.Printf("  → ✅ %s and %s stored (%s)\n", artifact.ArtifactsFile, artifact.KeypairFile, a.cfg.Store)
			return nil
		},
	}
}

func newProveCmd(a *app) *cobra.Command {
	var (
		sf      secretFlags
		address string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Prove knowledge of the secret, bound to an address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := sf.resolve()
			if err != nil {
				return err
			}
			if _, err := fieldcodec.AddressToLimbs(address); err != nil {
				return err
			}
			inputs, err := recovery.Inputs(secret, common.HexToAddress(address))
			if err != nil {
				return err
			}
			res, err := a.engine.Prove(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			if !res.Verified {
				return recovery.ErrProofInvalid
			}
			data, err := json.MarshalIndent(res.Proof, "", "  ")
			if err != nil {
				return err
			}
			return writeOut(out, data)
		},
	}
	sf.bind(cmd)
	cmd.Flags().StringVar(&address, "address", "", "address the proof is bound to")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the proof here instead of stdout")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a proof against the stored verification key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				p   *artifact.Proof
				err error
			)
			if path == "" {
				p, err = a.store.LoadProof(ctx)
			} else {
				p, err = readProof(path)
			}
			if err != nil {
				return err
			}
			ok, err := a.engine.VerifyProof(ctx, p)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("  → ❌ VERIFICATION FAILED")
				return recovery.ErrProofInvalid
			}
			fmt.Println("  → ✅ VERIFICATION SUCCESSFUL!")
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "proof", "", "proof.json to verify; defaults to the stored proof")
	return cmd
}

func readProof(path string) (*artifact.Proof, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p artifact.Proof
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", artifact.ErrDeserialization, path, err)
	}
	return &p, nil
}

func newExportVerifierCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-verifier",
		Short: "Export the Solidity verifier for the current keypair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			k, err := a.engine.Keypair(ctx)
			if err != nil {
				return err
			}
			src, err := a.engine.ExportVerifier(ctx, k.VK)
			if err != nil {
				return err
			}
			if out == "" && a.cfg.Store == config.StoreFile {
				fmt.Printf("  → %s stored in %s\n", artifact.VerifierFile, a.cfg.Dir)
				return nil
			}
			return writeOut(out, []byte(src))
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the contract here")
	return cmd
}

func newCommitmentCmd(a *app) *cobra.Command {
	var sf secretFlags
	cmd := &cobra.Command{
		Use:   "commitment",
		Short: "Print the on-chain commitment and digest limbs of a secret",
		RunE: func(*cobra.Command, []string) error {
			secret, err := sf.resolve()
			if err != nil {
				return err
			}
			digest, commitment, err := hashpack.SecretCommitment(secret)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(map[string]any{
				"commitment": hexutil.Encode(commitment[:]),
				"hash":       digest,
			}, "", "  ")
			if err != nil {
				return err
			}
			a.logger.Debug().Msg("commitment computed")
			return writeOut("", data)
		},
	}
	sf.bind(cmd)
	return cmd
}
