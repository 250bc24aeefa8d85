package recovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerokey/artifact"
	"zerokey/engine"
	"zerokey/fieldcodec"
	"zerokey/hashpack"
	"zerokey/internal/logging"
	"zerokey/safe"
)

var (
	account  = common.HexToAddress("0x5afe5afe5afe5afe5afe5afe5afe5afe5afe5afe")
	owner    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	newOwner = common.HexToAddress("0x955954d5ac0a61b0996cced9d43e2534b0d99f5e")
)

func answers() []Answer {
	return []Answer{
		{Question: "What was your first pet's name?", Answer: "Vanilla"},
		{Question: "In which city were you born?", Answer: "Buenos Aires"},
		{Question: "What is your favourite book?", Answer: "Dune"},
	}
}

// fakeProver mimics the circuit: it checks the digest against the secret
// limbs and returns the public inputs the real engine would.
type fakeProver struct {
	verified bool
	err      error
	calls    int
	sameRaw  bool
}

func (f *fakeProver) Prove(_ context.Context, inputs []string) (*engine.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	digest, err := hashpack.PackedDigest(inputs[0], inputs[1], inputs[2], inputs[3])
	if err != nil {
		return nil, err
	}
	if digest[0] != inputs[4] || digest[1] != inputs[5] {
		return nil, engine.ErrWitness
	}
	hi, _ := fieldcodec.ParseLimb(inputs[6])
	lo, _ := fieldcodec.ParseLimb(inputs[7])
	ah := hashpack.PackedDigestInts([4]*big.Int{hi, lo, new(big.Int), new(big.Int)})
	raw := fmt.Sprintf("proof-%d", f.calls)
	if f.sameRaw {
		raw = "proof"
	}
	return &engine.Result{
		Verified: f.verified,
		Proof: &artifact.Proof{
			Scheme: "groth16",
			Inputs: append(append([]string(nil), inputs[4:]...), ah[0].String(), ah[1].String()),
			Raw:    []byte(raw),
		},
	}, nil
}

type okVerifier struct{}

func (okVerifier) VerifyProof(context.Context, *artifact.Proof) (bool, error) { return true, nil }

func setup(t *testing.T, prover Prover) (*Protocol, *safe.SimulatedModule) {
	t.Helper()
	sim := safe.NewSimulatedModule(okVerifier{}, newOwner, zerolog.Nop())
	sim.Deploy(account, []common.Address{owner}, big.NewInt(1000))
	p := NewProtocol(sim, prover, zerolog.Nop())
	_, err := p.CreateAccount(context.Background(), account, answers())
	require.NoError(t, err)
	return p, sim
}

func TestSerializeQuestionsAndAnswers(t *testing.T) {
	s, err := SerializeQuestionsAndAnswers(answers())
	require.NoError(t, err)
	assert.Equal(t, "Whatwasyourfirstpet'sname?VanillaInwhichcitywereyouborn?BuenosAiresWhatisyourfavouritebook?Dune", s)

	tabbed := answers()
	tabbed[1].Answer = "\tBuenos  Aires\n"
	s2, err := SerializeQuestionsAndAnswers(tabbed)
	require.NoError(t, err)
	assert.Equal(t, s, s2)

	reordered := answers()
	reordered[0], reordered[2] = reordered[2], reordered[0]
	s3, err := SerializeQuestionsAndAnswers(reordered)
	require.NoError(t, err)
	assert.NotEqual(t, s, s3)
}

func TestSerializeRejects(t *testing.T) {
	cases := map[string]func([]Answer) []Answer{
		"too few": func(a []Answer) []Answer { return a[:2] },
		"empty": func(a []Answer) []Answer {
			a[1].Answer = " \t"
			return a
		},
		"duplicate": func(a []Answer) []Answer {
			a[2].Question = "  " + a[0].Question
			return a
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := SerializeQuestionsAndAnswers(mutate(answers()))
			assert.ErrorIs(t, err, ErrInvalidAnswers)
			assert.True(t, IsUserError(err))
		})
	}
}

func TestCommitmentMatchesPackedDigest(t *testing.T) {
	s, err := SerializeQuestionsAndAnswers(answers())
	require.NoError(t, err)
	c, err := Commitment(s)
	require.NoError(t, err)
	digest, want, err := hashpack.SecretCommitment(s)
	require.NoError(t, err)
	assert.Equal(t, want, c)

	in, err := Inputs(s, newOwner)
	require.NoError(t, err)
	require.Len(t, in, 8)
	assert.Equal(t, digest[0], in[4])
	assert.Equal(t, digest[1], in[5])
	assert.Equal(t, []string{"2505659605", "228681119628961782455211471579100323678"}, in[6:])
}

func TestRecover(t *testing.T) {
	p, sim := setup(t, &fakeProver{verified: true})
	ctx := context.Background()

	res, err := p.Recover(ctx, account, newOwner, answers())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []common.Address{newOwner}, sim.Owners(account))
}

func TestSend(t *testing.T) {
	p, sim := setup(t, &fakeProver{verified: true})
	_, err := p.Send(context.Background(), account, newOwner, newOwner, big.NewInt(250), answers())
	require.NoError(t, err)
	assert.Equal(t, int64(750), sim.Balance(account).Int64())
}

func TestWrongAnswersRejectedByWallet(t *testing.T) {
	p, sim := setup(t, &fakeProver{verified: true})
	wrong := answers()
	wrong[2].Answer = "Foundation"

	_, err := p.Recover(context.Background(), account, newOwner, wrong)
	assert.ErrorIs(t, err, ErrAuthorization)
	assert.True(t, IsUserError(err))
	assert.Equal(t, []common.Address{owner}, sim.Owners(account))
}

func TestProofBoundToSubmitter(t *testing.T) {
	p, sim := setup(t, &fakeProver{verified: true})
	sim.SetCaller(owner)
	_, err := p.Recover(context.Background(), account, newOwner, answers())
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestInvalidProofNotSubmitted(t *testing.T) {
	p, sim := setup(t, &fakeProver{verified: false})
	_, err := p.Recover(context.Background(), account, newOwner, answers())
	assert.ErrorIs(t, err, ErrProofInvalid)
	assert.Equal(t, []common.Address{owner}, sim.Owners(account))
}

func TestProofReused(t *testing.T) {
	p, _ := setup(t, &fakeProver{verified: true, sameRaw: true})
	ctx := context.Background()
	_, err := p.Send(ctx, account, newOwner, newOwner, big.NewInt(1), answers())
	require.NoError(t, err)
	_, err = p.Send(ctx, account, newOwner, newOwner, big.NewInt(1), answers())
	assert.ErrorIs(t, err, ErrProofReused)
}

func TestRotateCommitment(t *testing.T) {
	p, sim := setup(t, &fakeProver{verified: true})
	ctx := context.Background()
	rotated := answers()
	rotated[0].Answer = "Chocolate"
	_, err := p.CreateAccount(ctx, account, rotated)
	require.NoError(t, err)

	_, err = p.Recover(ctx, account, newOwner, answers())
	assert.ErrorIs(t, err, ErrAuthorization)
	_, err = p.Recover(ctx, account, newOwner, rotated)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{newOwner}, sim.Owners(account))
}

// countingWallet records which wallet calls the protocol makes.
type countingWallet struct {
	*safe.SimulatedModule
	enabledChecks int
	secrets       int
}

func (w *countingWallet) IsModuleEnabled(ctx context.Context, account common.Address) (bool, error) {
	w.enabledChecks++
	return w.SimulatedModule.IsModuleEnabled(ctx, account)
}

func (w *countingWallet) AddSecret(ctx context.Context, account common.Address, hash [32]byte) (*safe.TransactionResult, error) {
	w.secrets++
	return w.SimulatedModule.AddSecret(ctx, account, hash)
}

func TestCreateAccountSingleWalletCall(t *testing.T) {
	sim := safe.NewSimulatedModule(okVerifier{}, newOwner, zerolog.Nop())
	sim.Deploy(account, []common.Address{owner}, big.NewInt(1000))
	w := &countingWallet{SimulatedModule: sim}
	p := NewProtocol(w, &fakeProver{verified: true}, zerolog.Nop())
	ctx := context.Background()

	_, err := p.CreateAccount(ctx, account, answers())
	require.NoError(t, err)
	rotated := answers()
	rotated[2].Answer = "Solaris"
	_, err = p.CreateAccount(ctx, account, rotated)
	require.NoError(t, err)

	assert.Equal(t, 2, w.secrets)
	assert.Zero(t, w.enabledChecks)
	want, err := SerializeQuestionsAndAnswers(rotated)
	require.NoError(t, err)
	c, err := Commitment(want)
	require.NoError(t, err)
	got, ok := sim.Commitment(account)
	require.True(t, ok)
	assert.Equal(t, c, got)
}

// A fresh encoding of an already spent statement gets past the used set;
// rotating the commitment is what retires it.
func TestRotationRetiresReencodedProof(t *testing.T) {
	prover := &fakeProver{verified: true}
	p, sim := setup(t, prover)
	ctx := context.Background()

	_, err := p.Send(ctx, account, newOwner, newOwner, big.NewInt(1), answers())
	require.NoError(t, err)
	_, err = p.Send(ctx, account, newOwner, newOwner, big.NewInt(1), answers())
	require.NoError(t, err, "new raw bytes are not a replay by fingerprint")
	assert.Equal(t, big.NewInt(998), sim.Balance(account))

	rotated := answers()
	rotated[0].Answer = "Chocolate"
	_, err = p.CreateAccount(ctx, account, rotated)
	require.NoError(t, err)
	_, err = p.Send(ctx, account, newOwner, newOwner, big.NewInt(1), answers())
	assert.ErrorIs(t, err, ErrAuthorization)
	assert.Equal(t, big.NewInt(998), sim.Balance(account))
}

func TestProverErrors(t *testing.T) {
	p, _ := setup(t, &fakeProver{err: fmt.Errorf("%w: out of memory", engine.ErrProving)})
	_, err := p.Recover(context.Background(), account, newOwner, answers())
	assert.ErrorIs(t, err, engine.ErrProving)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsUserError(err))

	assert.False(t, IsRetryable(ErrAuthorization))
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.False(t, IsUserError(errors.New("other")))
}

func TestGroth16Recovery(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	defer logging.SilenceGnark()()
	ctx := context.Background()

	e := engine.New(engine.NewGroth16Backend(zerolog.Nop()))
	require.NoError(t, e.Initialize(ctx))
	defer e.Close()

	sim := safe.NewSimulatedModule(e, newOwner, zerolog.Nop())
	sim.Deploy(account, []common.Address{owner}, big.NewInt(1000))
	p := NewProtocol(sim, e, zerolog.Nop())

	_, err := p.CreateAccount(ctx, account, answers())
	require.NoError(t, err)
	_, err = p.Recover(ctx, account, newOwner, answers())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{newOwner}, sim.Owners(account))

	wrong := answers()
	wrong[0].Answer = "Chocolate"
	_, err = p.Send(ctx, account, newOwner, newOwner, big.NewInt(1), wrong)
	assert.ErrorIs(t, err, ErrAuthorization)
}
