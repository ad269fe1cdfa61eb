package executor

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrReverted is wrapped by TransactionError when the receipt status is failed.
var ErrReverted = errors.New("transaction reverted")

// TransactionError reports a failed harvest submission or confirmation.
// TxHash is zero when the transaction never reached the node.
type TransactionError struct {
	TxHash common.Hash
	Reason string
	Err    error
}

func (e *TransactionError) Error() string {
	var b strings.Builder
	b.WriteString("harvest transaction")
	if e.TxHash != (common.Hash{}) {
		b.WriteString(" ")
		b.WriteString(e.TxHash.Hex())
	}
	b.WriteString(" failed")
	if e.Reason != "" {
		b.WriteString(" (revert: ")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransactionError) Unwrap() error { return e.Err }

// Submitted reports whether the transaction was accepted by the node.
func (e *TransactionError) Submitted() bool {
	return e.TxHash != (common.Hash{})
}

// revertReason extracts a Solidity Error(string) reason from a JSON-RPC
// error carrying revert data. It returns "" when none is available.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return ""
	}
	data, decErr := hexutil.Decode(hexData)
	if decErr != nil {
		return ""
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return ""
	}
	return reason
}
