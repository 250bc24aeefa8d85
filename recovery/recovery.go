// Package recovery turns a user's security answers into a wallet commitment,
// and later into a zero-knowledge authorization for a recovery or transfer.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zerokey/artifact"
	"zerokey/engine"
	"zerokey/fieldcodec"
	"zerokey/hashpack"
	"zerokey/safe"
)

var (
	// ErrInvalidAnswers reports an unusable question/answer set.
	ErrInvalidAnswers = errors.New("invalid security answers")
	// ErrProofInvalid means the proof failed local verification and was not
	// submitted.
	ErrProofInvalid = errors.New("proof failed verification")
	// ErrProofReused means these exact proof bytes were already submitted.
	// Groth16 proofs can be re-randomized into new bytes for the same
	// statement, so this only stops verbatim resubmission. Rotating the
	// commitment with CreateAccount is what invalidates earlier proofs.
	ErrProofReused = errors.New("proof already submitted")
	// ErrAuthorization means the wallet rejected a proof that verified locally.
	ErrAuthorization = errors.New("authorization rejected")
)

// IsUserError reports whether err is caused by the user's input rather than
// the system.
func IsUserError(err error) bool {
	for _, s := range []error{ErrInvalidAnswers, ErrProofInvalid, ErrAuthorization, fieldcodec.ErrEncoding, engine.ErrWitness} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the same request may succeed if repeated.
func IsRetryable(err error) bool {
	return engine.IsRetryable(err) || errors.Is(err, engine.ErrBackendUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Prover runs the full proof pipeline for the preimage circuit.
type Prover interface {
	Prove(ctx context.Context, inputs []string) (*engine.Result, error)
}

// Wallet is the smart-contract wallet the protocol drives. Both
// *safe.Manager and *safe.SimulatedModule implement it.
type Wallet interface {
	CreateSwapOwnerTx(ctx context.Context, account, newOwner common.Address) (*safe.Transaction, error)
	AddSecret(ctx context.Context, account common.Address, hash [32]byte) (*safe.TransactionResult, error)
	ExecuteTransactionWithProof(ctx context.Context, account common.Address, tx *safe.Transaction, p *artifact.Proof) (*safe.TransactionResult, error)
}

// Request asks the wallet to run Tx on Account. Submitter is the address
// that will send the proof; the proof is bound to it.
type Request struct {
	Account   common.Address
	Submitter common.Address
	Tx        *safe.Transaction
	Answers   []Answer
}

// Protocol drives account creation and proof-authorized actions.
type Protocol struct {
	wallet Wallet
	prover Prover
	logger zerolog.Logger

	mu   sync.Mutex
	used map[common.Hash]bool
}

// NewProtocol returns a protocol using wallet and prover.
func NewProtocol(wallet Wallet, prover Prover, logger zerolog.Logger) *Protocol {
	return &Protocol{
		wallet: wallet,
		prover: prover,
		logger: logger.With().Str("component", "recovery").Logger(),
		used:   make(map[common.Hash]bool),
	}
}

// CreateAccount stores the commitment of answers on account. Calling it again
// on an account with the module enabled rotates the commitment.
func (p *Protocol) CreateAccount(ctx context.Context, account common.Address, answers []Answer) (*safe.TransactionResult, error) {
	secret, err := SerializeQuestionsAndAnswers(answers)
	if err != nil {
		return nil, err
	}
	commitment, err := Commitment(secret)
	if err != nil {
		return nil, err
	}
	res, err := p.wallet.AddSecret(ctx, account, commitment)
	if err != nil {
		return nil, err
	}
	p.logger.Info().Stringer("account", account).Msg("commitment stored")
	return res, nil
}

// Inputs builds the prover input vector: the four secret limbs, the two
// digest limbs and the two limbs of submitter.
func Inputs(secret string, submitter common.Address) ([]string, error) {
	limbs, err := fieldcodec.HashToLimbs(secret)
	if err != nil {
		return nil, err
	}
	digest, err := hashpack.PackedDigest(limbs[0], limbs[1], limbs[2], limbs[3])
	if err != nil {
		return nil, err
	}
	addr, err := fieldcodec.AddressToLimbs(submitter.Hex())
	if err != nil {
		return nil, err
	}
	return []string{limbs[0], limbs[1], limbs[2], limbs[3], digest[0], digest[1], addr[0], addr[1]}, nil
}

// Authorize proves knowledge of the answers and submits req.Tx to the wallet
// with the proof. A proof that fails local verification is never submitted.
func (p *Protocol) Authorize(ctx context.Context, req Request) (*safe.TransactionResult, error) {
	if req.Tx == nil {
		return nil, errors.New("no transaction to authorize")
	}
	log := p.logger.With().Str("attempt", uuid.NewString()).Stringer("account", req.Account).Logger()

	secret, err := SerializeQuestionsAndAnswers(req.Answers)
	if err != nil {
		return nil, err
	}
	inputs, err := Inputs(secret, req.Submitter)
	if err != nil {
		return nil, err
	}
	log.Debug().Msg("generating proof")
	res, err := p.prover.Prove(ctx, inputs)
	if err != nil {
		log.Warn().Err(err).Msg("proof generation failed")
		return nil, err
	}
	if !res.Verified {
		log.Warn().Msg("proof rejected locally")
		return nil, ErrProofInvalid
	}

	fp := res.Proof.Fingerprint()
	p.mu.Lock()
	if p.used[fp] {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrProofReused, fp)
	}
	p.used[fp] = true
	p.mu.Unlock()

	out, err := p.wallet.ExecuteTransactionWithProof(ctx, req.Account, req.Tx, res.Proof)
	if errors.Is(err, safe.ErrRejected) {
		log.Warn().Err(err).Msg("wallet rejected proof")
		return out, fmt.Errorf("%w: %v", ErrAuthorization, err)
	}
	if err != nil {
		return out, err
	}
	log.Info().Stringer("tx", out.Hash).Msg("authorized")
	return out, nil
}

// Recover replaces the first owner of account with newOwner. newOwner also
// submits the proof.
func (p *Protocol) Recover(ctx context.Context, account, newOwner common.Address, answers []Answer) (*safe.TransactionResult, error) {
	tx, err := p.wallet.CreateSwapOwnerTx(ctx, account, newOwner)
	if err != nil {
		return nil, err
	}
	return p.Authorize(ctx, Request{Account: account, Submitter: newOwner, Tx: tx, Answers: answers})
}

// Send transfers value wei from account to to, submitted by submitter.
func (p *Protocol) Send(ctx context.Context, account, submitter, to common.Address, value *big.Int, answers []Answer) (*safe.TransactionResult, error) {
	return p.Authorize(ctx, Request{
		Account:   account,
		Submitter: submitter,
		Tx:        safe.NewNativeTransfer(to, value),
		Answers:   answers,
	})
}
