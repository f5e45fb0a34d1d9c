package bridge

import (
	"fmt"
	"math/big"
)

// parseNanoTON parses a decimal-string nanoton balance (as returned by
// getWalletInformation, spec.md §4.2) into a uint64.
func parseNanoTON(decimal string) (uint64, error) {
	n, ok := new(big.Int).SetString(decimal, 10)
	if !ok {
		return 0, fmt.Errorf("bridge: malformed balance %q", decimal)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("bridge: balance %q overflows uint64", decimal)
	}
	return n.Uint64(), nil
}
