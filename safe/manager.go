package safe

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"zerokey/artifact"
)

// Backend is the chain access the manager needs; *ethclient.Client
// satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config addresses the contracts a Manager works with.
type Config struct {
	Module       common.Address
	MultiSend    common.Address
	PollInterval time.Duration
}

// Manager signs and submits Safe transactions with a single owner key, and
// calls the recovery module from the same key.
type Manager struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	cfg     Config
	logger  zerolog.Logger

	account common.Address
}

// NewManager returns a manager acting as the owner of key.
func NewManager(backend Backend, key *ecdsa.PrivateKey, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return &Manager{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		cfg:     cfg,
		logger:  logger.With().Str("component", "safe").Logger(),
	}
}

// From is the EOA the manager signs with.
func (m *Manager) From() common.Address { return m.from }

// InitializeWallet binds the manager to account. It reports false when
// account is not a Safe owned by the manager's key.
func (m *Manager) InitializeWallet(ctx context.Context, account common.Address) (bool, error) {
	owners, err := m.GetOwners(ctx, account)
	if err != nil {
		m.logger.Warn().Err(err).Stringer("account", account).Msg("not a safe")
		return false, nil
	}
	for _, o := range owners {
		if o == m.from {
			m.account = account
			return true, nil
		}
	}
	return false, nil
}

// Account is the Safe bound by InitializeWallet.
func (m *Manager) Account() common.Address { return m.account }

func (m *Manager) call(ctx context.Context, to common.Address, a abi.ABI, method string, args ...any) ([]any, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := m.backend.CallContract(ctx, ethereum.CallMsg{From: m.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	res, err := a.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return res, nil
}

// GetOwners returns the Safe owners in list order.
func (m *Manager) GetOwners(ctx context.Context, account common.Address) ([]common.Address, error) {
	res, err := m.call(ctx, account, safeABI, "getOwners")
	if err != nil {
		return nil, err
	}
	owners, ok := res[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getOwners: unexpected %T", res[0])
	}
	return owners, nil
}

// IsModuleEnabled reports whether the recovery module is enabled on account.
func (m *Manager) IsModuleEnabled(ctx context.Context, account common.Address) (bool, error) {
	res, err := m.call(ctx, account, safeABI, "isModuleEnabled", m.cfg.Module)
	if err != nil {
		return false, err
	}
	enabled, ok := res[0].(bool)
	if !ok {
		return false, fmt.Errorf("isModuleEnabled: unexpected %T", res[0])
	}
	return enabled, nil
}

func (m *Manager) nonce(ctx context.Context, account common.Address) (*big.Int, error) {
	res, err := m.call(ctx, account, safeABI, "nonce")
	if err != nil {
		return nil, err
	}
	n, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("nonce: unexpected %T", res[0])
	}
	return n, nil
}

// CreateSwapOwnerTx replaces the first owner of account with newOwner.
func (m *Manager) CreateSwapOwnerTx(ctx context.Context, account, newOwner common.Address) (*Transaction, error) {
	owners, err := m.GetOwners(ctx, account)
	if err != nil {
		return nil, err
	}
	return NewSwapOwnerTx(account, owners, newOwner)
}

// CreateNativeTokenTransfer builds a plain value transfer.
func (m *Manager) CreateNativeTokenTransfer(to common.Address, value *big.Int) *Transaction {
	return NewNativeTransfer(to, value)
}

// AddSecret stores hash as the recovery commitment of account, enabling the
// module in the same batch when it is not enabled yet.
func (m *Manager) AddSecret(ctx context.Context, account common.Address, hash [32]byte) (*TransactionResult, error) {
	setHash, err := NewSetHashTx(m.cfg.Module, hash)
	if err != nil {
		return nil, err
	}
	enabled, err := m.IsModuleEnabled(ctx, account)
	if err != nil {
		return nil, err
	}
	tx := setHash
	if !enabled {
		enable, err := NewEnableModuleTx(account, m.cfg.Module)
		if err != nil {
			return nil, err
		}
		if tx, err = NewMultiSendTx(m.cfg.MultiSend, enable, setHash); err != nil {
			return nil, err
		}
	}
	return m.ExecuteSafeTransaction(ctx, account, tx)
}

// SignTransaction returns the owner signature over the SafeTx hash, with v
// in {27, 28}.
func (m *Manager) SignTransaction(chainID *big.Int, account common.Address, nonce *big.Int, tx *Transaction) ([]byte, error) {
	h := tx.Hash(chainID, account, nonce)
	sig, err := crypto.Sign(h.Bytes(), m.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// ExecuteSafeTransaction signs tx as the sole required owner and submits
// execTransaction from the owner account.
func (m *Manager) ExecuteSafeTransaction(ctx context.Context, account common.Address, tx *Transaction) (*TransactionResult, error) {
	chainID, err := m.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := m.nonce(ctx, account)
	if err != nil {
		return nil, err
	}
	sig, err := m.SignTransaction(chainID, account, nonce, tx)
	if err != nil {
		return nil, err
	}
	data, err := safeABI.Pack("execTransaction",
		tx.To, tx.value(), tx.Data, uint8(tx.Operation),
		new(big.Int), new(big.Int), new(big.Int),
		common.Address{}, common.Address{}, sig)
	if err != nil {
		return nil, err
	}
	return m.send(ctx, chainID, account, data)
}

// ExecuteTransactionWithProof asks the module to run tx on account, authorized
// by p instead of an owner signature.
func (m *Manager) ExecuteTransactionWithProof(ctx context.Context, account common.Address, tx *Transaction, p *artifact.Proof) (*TransactionResult, error) {
	data, err := EncodeExecuteWithProof(account, tx, p)
	if err != nil {
		return nil, err
	}
	chainID, err := m.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return m.send(ctx, chainID, m.cfg.Module, data)
}

func (m *Manager) send(ctx context.Context, chainID *big.Int, to common.Address, data []byte) (*TransactionResult, error) {
	nonce, err := m.backend.PendingNonceAt(ctx, m.from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := m.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gas, err := m.backend.EstimateGas(ctx, ethereum.CallMsg{From: m.from, To: &to, Data: data})
	if err != nil {
		// estimation reverts when the target would reject the call
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	tx := types.NewTx(&types.LegacyTx{Nonce: nonce, GasPrice: gasPrice, Gas: gas, To: &to, Data: data})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), m.key)
	if err != nil {
		return nil, err
	}
	if err := m.backend.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	m.logger.Info().Stringer("tx", signed.Hash()).Stringer("to", to).Msg("transaction sent")

	receipt, err := m.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	res := &TransactionResult{Hash: signed.Hash(), Success: receipt.Status == types.ReceiptStatusSuccessful}
	if !res.Success {
		return res, fmt.Errorf("%w: transaction %s reverted", ErrRejected, signed.Hash())
	}
	return res, nil
}

func (m *Manager) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := m.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
