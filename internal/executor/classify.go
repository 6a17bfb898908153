package executor

import "strings"

// retryableSubstrings are matched case-insensitively against a failed
// operation's error message to decide whether it is worth retrying.
var retryableSubstrings = []string{
	"network error",
	"timeout",
	"connection refused",
	"nonce too low",
	"replacement transaction underpriced",
	"insufficient funds for gas",
}

// classifyError reports whether err looks like a transient chain/RPC
// condition worth retrying, per §4.5's substring classification.
func classifyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
