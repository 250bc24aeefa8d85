package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"zerokey/fieldcodec"
	"zerokey/hashpack"
	"zerokey/recovery"
	"zerokey/safe"
)

const (
	demoSecret  = "vanillaiqaweufbgviuywrebgiyrwbrgywergiwybebwrguiyigbuwrbuiogwrrgbiojugiowrbujwrgbuiouiob"
	demoAddress = "0x955954d5ac0a61b0996cced9d43e2534b0d99f5e"
)

var demoAnswers = []recovery.Answer{
	{Question: "What was the name of your first pet?", Answer: "vanilla"},
	{Question: "What city were you born in?", Answer: "Rosario"},
	{Question: "What was your childhood nickname?", Answer: "pipo"},
}

func newDemoCmd(a *app) *cobra.Command {
	var skipChain bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the full proving lifecycle and a recovery against a Safe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.runLifecycle(ctx); err != nil {
				return err
			}
			if skipChain {
				return nil
			}
			if a.cfg.RPC == "" {
				return a.runSimulatedRecovery(ctx)
			}
			return a.runChainRecovery(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipChain, "lifecycle-only", false, "stop after exporting the verifier")
	return cmd
}

// runLifecycle proves knowledge of the sample secret for the sample address.
func (a *app) runLifecycle(ctx context.Context) error {
	fmt.Println("--- ZeroKey proving lifecycle ---")

	fmt.Println("\n▶ Part 1: Encoding inputs...")
	secret, err := fieldcodec.HashToLimbs(demoSecret)
	if err != nil {
		return err
	}
	hash, err := hashpack.PackedDigest(secret[0], secret[1], secret[2], secret[3])
	if err != nil {
		return err
	}
	addr, err := fieldcodec.AddressToLimbs(demoAddress)
	if err != nil {
		return err
	}
	fmt.Printf("  secret limbs:  %s\n", strings.Join(secret[:], ", "))
	fmt.Printf("  hash:          %s, %s\n", hash[0], hash[1])
	fmt.Printf("  address limbs: %s, %s\n", addr[0], addr[1])

	fmt.Println("\n▶ Part 2: Compiling circuit...")
	art, err := a.engine.Compile(ctx, a.cfg.Circuit)
	if err != nil {
		return err
	}
	fmt.Printf("  → %d constraints\n", art.ConstraintCount)

	fmt.Println("\n▶ Part 3: Performing trusted setup...")
	k, err := a.engine.Setup(ctx, art)
	if err != nil {
		return err
	}

	fmt.Println("\n▶ Part 4: Computing witness...")
	inputs := []string{secret[0], secret[1], secret[2], secret[3], hash[0], hash[1], addr[0], addr[1]}
	w, err := a.engine.ComputeWitness(ctx, art, inputs)
	if err != nil {
		return err
	}
	fmt.Printf("  → address hash output: %s\n", strings.Join(w.Output, ", "))

	fmt.Println("\n▶ Part 5: Generating proof...")
	p, err := a.engine.GenerateProof(ctx, art, w, k.PK)
	if err != nil {
		return err
	}

	fmt.Println("\n▶ Part 6: Verifying proof...")
	ok, err := a.engine.Verify(ctx, k.VK, p)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("  → ❌ VERIFICATION FAILED")
		return recovery.ErrProofInvalid
	}
	fmt.Println("  → ✅ Proof verified successfully!")
	if err := a.store.SaveProof(ctx, p); err != nil {
		return err
	}

	fmt.Println("\n▶ Part 7: Exporting Solidity verifier...")
	src, err := a.engine.ExportVerifier(ctx, k.VK)
	if err != nil {
		return err
	}
	fmt.Printf("  → %d bytes of Solidity\n", len(src))
	return nil
}

// runSimulatedRecovery walks an account through creation, recovery and a
// proof-authorized transfer on the in-memory module.
func (a *app) runSimulatedRecovery(ctx context.Context) error {
	fmt.Println("\n--- Recovery on the in-memory module ---")
	lost, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	rescuer, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	owner := crypto.PubkeyToAddress(lost.PublicKey)
	newOwner := crypto.PubkeyToAddress(rescuer.PublicKey)
	account := crypto.CreateAddress(owner, 0)

	sim := safe.NewSimulatedModule(a.engine, newOwner, a.logger)
	sim.Deploy(account, []common.Address{owner}, big.NewInt(1e18))
	proto := recovery.NewProtocol(sim, a.engine, a.logger)

	fmt.Println("\n▶ Creating account commitment...")
	if _, err := proto.CreateAccount(ctx, account, demoAnswers); err != nil {
		return err
	}
	c, _ := sim.Commitment(account)
	fmt.Printf("  → commitment 0x%x\n", c)

	fmt.Println("\n▶ Recovering with wrong answers...")
	wrong := append([]recovery.Answer(nil), demoAnswers...)
	wrong[1].Answer = "Cordoba"
	_, err = proto.Recover(ctx, account, newOwner, wrong)
	switch {
	case errors.Is(err, recovery.ErrAuthorization):
		fmt.Println("  → ✅ rejected by the module")
	case err != nil:
		return err
	default:
		return errors.New("wrong answers were accepted")
	}

	fmt.Println("\n▶ Recovering with the right answers...")
	if _, err := proto.Recover(ctx, account, newOwner, demoAnswers); err != nil {
		return err
	}
	fmt.Printf("  → owners now %v\n", sim.Owners(account))

	fmt.Println("\n▶ Sending 0.25 ether with a proof...")
	value := new(big.Int).Div(big.NewInt(1e18), big.NewInt(4))
	if _, err := proto.Send(ctx, account, newOwner, newOwner, value, demoAnswers); err != nil {
		return err
	}
	fmt.Printf("  → account balance %s wei\n", sim.Balance(account))
	return nil
}

// runChainRecovery stores the commitment on a deployed Safe and sends a
// zero-value transfer authorized by a proof.
func (a *app) runChainRecovery(ctx context.Context) error {
	fmt.Println("\n--- Recovery on chain ---")
	client, err := ethclient.DialContext(ctx, a.cfg.RPC)
	if err != nil {
		return err
	}
	defer client.Close()

	key, err := crypto.HexToECDSA(strings.TrimPrefix(a.cfg.PrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("private key: %w", err)
	}
	m := safe.NewManager(client, key, safe.Config{
		Module:       common.HexToAddress(a.cfg.Module),
		MultiSend:    common.HexToAddress(a.cfg.MultiSend),
		PollInterval: a.cfg.PollInterval,
	}, a.logger)

	account := common.HexToAddress(a.cfg.Account)
	ok, err := m.InitializeWallet(ctx, account)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not a Safe owned by %s", account, m.From())
	}
	proto := recovery.NewProtocol(m, a.engine, a.logger)

	fmt.Println("\n▶ Storing commitment...")
	res, err := proto.CreateAccount(ctx, account, demoAnswers)
	if err != nil {
		return err
	}
	fmt.Printf("  → tx %s\n", res.Hash)

	fmt.Println("\n▶ Executing a proof-authorized transfer...")
	res, err = proto.Send(ctx, account, m.From(), m.From(), new(big.Int), demoAnswers)
	if err != nil {
		return err
	}
	fmt.Printf("  → tx %s\n", res.Hash)
	return nil
}
