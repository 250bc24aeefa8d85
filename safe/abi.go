package safe

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"zerokey/artifact"
)

const safeABIJSON = `[
 {"type":"function","name":"enableModule","inputs":[{"name":"module","type":"address"}],"outputs":[]},
 {"type":"function","name":"isModuleEnabled","stateMutability":"view","inputs":[{"name":"module","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"getOwners","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
 {"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"swapOwner","inputs":[{"name":"prevOwner","type":"address"},{"name":"oldOwner","type":"address"},{"name":"newOwner","type":"address"}],"outputs":[]},
 {"type":"function","name":"execTransaction","inputs":[
  {"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},
  {"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},
  {"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},
  {"name":"signatures","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}]}
]`

const multiSendABIJSON = `[
 {"type":"function","name":"multiSend","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}
]`

// The module verifies the gnark solidity proof layout: eight proof words,
// the commitment and its proof of knowledge, then the public inputs.
const moduleABIJSON = `[
 {"type":"function","name":"setHash","inputs":[{"name":"hash","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"executeTransactionWithProof","inputs":[
  {"name":"account","type":"address"},
  {"name":"transaction","type":"tuple","components":[
   {"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"callData","type":"bytes"}]},
  {"name":"proof","type":"uint256[8]"},
  {"name":"commitments","type":"uint256[2]"},
  {"name":"commitmentPok","type":"uint256[2]"},
  {"name":"input","type":"uint256[6]"}],"outputs":[]}
]`

var (
	safeABI      = mustABI(safeABIJSON)
	multiSendABI = mustABI(multiSendABIJSON)
	moduleABI    = mustABI(moduleABIJSON)
)

// SentinelOwner heads the Safe owner linked list; it is the previous owner of
// the first owner.
var SentinelOwner = common.HexToAddress("0x0000000000000000000000000000000000000001")

func mustABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("bad abi: %v", err))
	}
	return a
}

// moduleTx is the tuple argument of executeTransactionWithProof.
type moduleTx struct {
	To       common.Address
	Value    *big.Int
	CallData []byte
}

// encodeMultiSend packs transactions in the MultiSend layout:
// operation(1) to(20) value(32) dataLength(32) data.
func encodeMultiSend(txs []*Transaction) ([]byte, error) {
	var packed []byte
	for _, tx := range txs {
		packed = append(packed, byte(tx.Operation))
		packed = append(packed, tx.To.Bytes()...)
		packed = append(packed, math.U256Bytes(new(big.Int).Set(tx.value()))...)
		packed = append(packed, math.U256Bytes(big.NewInt(int64(len(tx.Data))))...)
		packed = append(packed, tx.Data...)
	}
	return multiSendABI.Pack("multiSend", packed)
}

func parseWord(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid uint256 %q", s)
	}
	return v, nil
}

// proofArgs flattens a proof into the module call arguments.
func proofArgs(p *artifact.Proof) (words [8]*big.Int, commitments, pok [2]*big.Int, inputs [6]*big.Int, err error) {
	pts := p.Points
	flat := []string{
		pts.A[0], pts.A[1],
		pts.B[0][0], pts.B[0][1], pts.B[1][0], pts.B[1][1],
		pts.C[0], pts.C[1],
	}
	for i, s := range flat {
		if words[i], err = parseWord(s); err != nil {
			return
		}
	}
	var c, k artifact.G1
	if len(pts.Commitments) > 0 {
		c = pts.Commitments[0]
	}
	if pts.CommitmentPok != nil {
		k = *pts.CommitmentPok
	}
	for i := 0; i < 2; i++ {
		if commitments[i], err = parseWord(c[i]); err != nil {
			return
		}
		if pok[i], err = parseWord(k[i]); err != nil {
			return
		}
	}
	if len(p.Inputs) != len(inputs) {
		err = fmt.Errorf("proof has %d public inputs, module expects %d", len(p.Inputs), len(inputs))
		return
	}
	for i, s := range p.Inputs {
		if inputs[i], err = parseWord(s); err != nil {
			return
		}
	}
	return
}

// EncodeExecuteWithProof builds the calldata of the module's
// executeTransactionWithProof entry point.
func EncodeExecuteWithProof(account common.Address, tx *Transaction, p *artifact.Proof) ([]byte, error) {
	words, commitments, pok, inputs, err := proofArgs(p)
	if err != nil {
		return nil, err
	}
	return moduleABI.Pack("executeTransactionWithProof", account,
		moduleTx{To: tx.To, Value: tx.value(), CallData: tx.Data},
		words, commitments, pok, inputs)
}
