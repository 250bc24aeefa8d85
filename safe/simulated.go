package safe

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"zerokey/artifact"
	"zerokey/fieldcodec"
	"zerokey/hashpack"
)

// Verifier checks a proof against the module's verification key.
type Verifier interface {
	VerifyProof(ctx context.Context, p *artifact.Proof) (bool, error)
}

type simAccount struct {
	owners  []common.Address
	enabled bool
	hash    [32]byte
	hasHash bool
	balance *big.Int
}

// SimulatedModule keeps Safe accounts and the recovery module in memory. It
// enforces what the deployed module does: the commitment must match the
// proof's digest, the proof must be bound to the caller, it must verify and
// its bytes must not have been used before.
//
// The used set matches on Proof.Fingerprint, so a re-randomized copy of a
// spent groth16 proof passes it. Only AddSecret with a new commitment
// retires the old statement.
type SimulatedModule struct {
	verifier Verifier
	logger   zerolog.Logger

	mu       sync.Mutex
	caller   common.Address
	accounts map[common.Address]*simAccount
	used     map[common.Hash]bool
}

// NewSimulatedModule returns an empty module that submits calls as caller.
func NewSimulatedModule(v Verifier, caller common.Address, logger zerolog.Logger) *SimulatedModule {
	return &SimulatedModule{
		verifier: v,
		logger:   logger.With().Str("component", "sim-module").Logger(),
		caller:   caller,
		accounts: make(map[common.Address]*simAccount),
		used:     make(map[common.Hash]bool),
	}
}

// SetCaller changes the address that submits subsequent calls.
func (s *SimulatedModule) SetCaller(c common.Address) {
	s.mu.Lock()
	s.caller = c
	s.mu.Unlock()
}

// Deploy registers a Safe with the given owners and balance.
func (s *SimulatedModule) Deploy(account common.Address, owners []common.Address, balance *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account] = &simAccount{
		owners:  append([]common.Address(nil), owners...),
		balance: new(big.Int).Set(balance),
	}
}

func (s *SimulatedModule) account(a common.Address) (*simAccount, error) {
	acc, ok := s.accounts[a]
	if !ok {
		return nil, fmt.Errorf("%w: unknown account %s", ErrRejected, a)
	}
	return acc, nil
}

// Owners returns the current owners of account.
func (s *SimulatedModule) Owners(account common.Address) []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[account]; ok {
		return append([]common.Address(nil), acc.owners...)
	}
	return nil
}

// Balance returns the native balance of account.
func (s *SimulatedModule) Balance(account common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[account]; ok {
		return new(big.Int).Set(acc.balance)
	}
	return new(big.Int)
}

// Commitment returns the stored commitment of account.
func (s *SimulatedModule) Commitment(account common.Address) ([32]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[account]; ok {
		return acc.hash, acc.hasHash
	}
	return [32]byte{}, false
}

func (s *SimulatedModule) IsModuleEnabled(_ context.Context, account common.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.account(account)
	if err != nil {
		return false, err
	}
	return acc.enabled, nil
}

func (s *SimulatedModule) CreateSwapOwnerTx(_ context.Context, account, newOwner common.Address) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.account(account)
	if err != nil {
		return nil, err
	}
	return NewSwapOwnerTx(account, acc.owners, newOwner)
}

// AddSecret enables the module and stores hash. Replacing an existing hash
// rotates the commitment.
func (s *SimulatedModule) AddSecret(_ context.Context, account common.Address, hash [32]byte) (*TransactionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.account(account)
	if err != nil {
		return nil, err
	}
	acc.enabled = true
	acc.hash = hash
	acc.hasHash = true
	return &TransactionResult{Hash: crypto.Keccak256Hash(account.Bytes(), hash[:]), Success: true}, nil
}

func (s *SimulatedModule) ExecuteTransactionWithProof(ctx context.Context, account common.Address, tx *Transaction, p *artifact.Proof) (*TransactionResult, error) {
	if _, err := EncodeExecuteWithProof(account, tx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	s.mu.Lock()
	acc, err := s.account(account)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	caller := s.caller
	enabled, hash, hasHash := acc.enabled, acc.hash, acc.hasHash
	fp := p.Fingerprint()
	replay := s.used[fp]
	s.mu.Unlock()

	switch {
	case !enabled:
		return nil, fmt.Errorf("%w: module not enabled", ErrRejected)
	case !hasHash:
		return nil, fmt.Errorf("%w: no commitment stored", ErrRejected)
	case replay:
		return nil, fmt.Errorf("%w: proof already used", ErrRejected)
	}

	commitment, err := hashpack.Commitment([2]string{p.Inputs[0], p.Inputs[1]})
	if err != nil || commitment != hash {
		return nil, fmt.Errorf("%w: commitment mismatch", ErrRejected)
	}
	bound, err := fieldcodec.LimbsToAddress([2]string{p.Inputs[2], p.Inputs[3]})
	if err != nil || bound != caller {
		return nil, fmt.Errorf("%w: proof is not bound to caller %s", ErrRejected, caller)
	}
	ok, err := s.verifier.VerifyProof(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: verifier: %v", ErrRejected, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: invalid proof", ErrRejected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used[fp] {
		return nil, fmt.Errorf("%w: proof already used", ErrRejected)
	}
	if err := s.apply(account, acc, tx); err != nil {
		return nil, err
	}
	s.used[fp] = true
	s.logger.Info().Stringer("account", account).Stringer("proof", fp).Msg("transaction executed with proof")
	return &TransactionResult{Hash: fp, Success: true}, nil
}

func (s *SimulatedModule) apply(account common.Address, acc *simAccount, tx *Transaction) error {
	swap := safeABI.Methods["swapOwner"]
	switch {
	case tx.To == account && bytes.Equal(tx.Selector(), swap.ID):
		args, err := swap.Inputs.Unpack(tx.Data[4:])
		if err != nil {
			return fmt.Errorf("%w: swapOwner: %v", ErrRejected, err)
		}
		prev, old, next := args[0].(common.Address), args[1].(common.Address), args[2].(common.Address)
		for i, o := range acc.owners {
			if o != old {
				continue
			}
			if (i == 0 && prev != SentinelOwner) || (i > 0 && acc.owners[i-1] != prev) {
				return fmt.Errorf("%w: swapOwner: wrong previous owner", ErrRejected)
			}
			acc.owners[i] = next
			return nil
		}
		return fmt.Errorf("%w: swapOwner: %s is not an owner", ErrRejected, old)
	case len(tx.Data) == 0:
		if acc.balance.Cmp(tx.value()) < 0 {
			return fmt.Errorf("%w: insufficient balance", ErrRejected)
		}
		acc.balance.Sub(acc.balance, tx.value())
		if dst, ok := s.accounts[tx.To]; ok {
			dst.balance.Add(dst.balance, tx.value())
		}
		return nil
	}
	return fmt.Errorf("%w: unsupported call", ErrRejected)
}
