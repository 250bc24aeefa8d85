// Package safe talks to Safe smart-contract wallets and the ZeroKey recovery
// module, and provides an in-memory stand-in for tests and demos.
package safe

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Operation is the Safe call type.
type Operation uint8

const (
	Call         Operation = 0
	DelegateCall Operation = 1
)

// ErrRejected is returned when the wallet refuses a transaction.
var ErrRejected = errors.New("transaction rejected by wallet")

// Transaction is a Safe transaction before signing.
type Transaction struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation Operation
}

func (t *Transaction) value() *big.Int {
	if t.Value == nil {
		return new(big.Int)
	}
	return t.Value
}

// TransactionResult reports an executed transaction.
type TransactionResult struct {
	Hash    common.Hash
	Success bool
}

// Selector returns the 4-byte function selector of the call, if any.
func (t *Transaction) Selector() []byte {
	if len(t.Data) < 4 {
		return nil
	}
	return t.Data[:4]
}

// NewSwapOwnerTx replaces owners[0] with newOwner on account.
func NewSwapOwnerTx(account common.Address, owners []common.Address, newOwner common.Address) (*Transaction, error) {
	if len(owners) == 0 {
		return nil, errors.New("safe has no owners")
	}
	data, err := safeABI.Pack("swapOwner", SentinelOwner, owners[0], newOwner)
	if err != nil {
		return nil, err
	}
	return &Transaction{To: account, Value: new(big.Int), Data: data}, nil
}

// NewNativeTransfer sends value wei to to.
func NewNativeTransfer(to common.Address, value *big.Int) *Transaction {
	return &Transaction{To: to, Value: new(big.Int).Set(value)}
}

// NewSetHashTx stores hash as the account commitment on module.
func NewSetHashTx(module common.Address, hash [32]byte) (*Transaction, error) {
	data, err := moduleABI.Pack("setHash", hash)
	if err != nil {
		return nil, err
	}
	return &Transaction{To: module, Value: new(big.Int), Data: data}, nil
}

// NewEnableModuleTx enables module on account.
func NewEnableModuleTx(account, module common.Address) (*Transaction, error) {
	data, err := safeABI.Pack("enableModule", module)
	if err != nil {
		return nil, err
	}
	return &Transaction{To: account, Value: new(big.Int), Data: data}, nil
}

// NewMultiSendTx batches txs into one delegate call to the MultiSend contract.
func NewMultiSendTx(multiSend common.Address, txs ...*Transaction) (*Transaction, error) {
	data, err := encodeMultiSend(txs)
	if err != nil {
		return nil, err
	}
	return &Transaction{To: multiSend, Value: new(big.Int), Data: data, Operation: DelegateCall}, nil
}

var (
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypeHash = crypto.Keccak256Hash([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// Hash returns the EIP-712 SafeTx hash for account on chainID with the given
// Safe nonce. Gas refund fields are zero.
func (t *Transaction) Hash(chainID *big.Int, account common.Address, nonce *big.Int) common.Hash {
	word := func(v *big.Int) []byte { return common.LeftPadBytes(v.Bytes(), 32) }
	addr := func(a common.Address) []byte { return common.LeftPadBytes(a.Bytes(), 32) }
	zero := make([]byte, 32)

	domain := crypto.Keccak256(domainTypeHash.Bytes(), word(chainID), addr(account))
	structHash := crypto.Keccak256(
		safeTxTypeHash.Bytes(),
		addr(t.To),
		word(t.value()),
		crypto.Keccak256(t.Data),
		word(big.NewInt(int64(t.Operation))),
		zero, zero, zero,
		addr(common.Address{}), addr(common.Address{}),
		word(nonce),
	)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain, structHash)
}
