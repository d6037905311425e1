package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertReason extracts the human readable reason of a contract rejection.
// The ABI-encoded Error(string) payload wins when the node supplies one;
// otherwise the reason is the message text after "revert ".
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason, true
				}
			}
		}
	}
	return reasonFromMessage(err.Error())
}

func reasonFromMessage(msg string) (string, bool) {
	const gethPrefix = "execution reverted: "
	if i := strings.Index(msg, gethPrefix); i >= 0 {
		return msg[i+len(gethPrefix):], true
	}
	if i := strings.Index(msg, "revert "); i >= 0 {
		return msg[i+len("revert "):], true
	}
	if strings.Contains(msg, "execution reverted") || strings.HasSuffix(msg, "revert") {
		return msg, true
	}
	return "", false
}

// nodeAnswered reports whether err is a JSON-RPC error object, i.e. the node
// was reached and refused the request.
func nodeAnswered(err error) bool {
	var re rpc.Error
	return errors.As(err, &re)
}
