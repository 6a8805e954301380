// Package ledger produces publication tokens for audit records and, when
// configured, writes audit outcomes to the on-chain audit contract.
package ledger

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NewTxHash reads 32 random bytes from r and returns them as a transaction
// hash. A nil reader uses crypto/rand.
func NewTxHash(r io.Reader) (common.Hash, error) {
	if r == nil {
		r = rand.Reader
	}
	var h common.Hash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return common.Hash{}, fmt.Errorf("ledger: generate tx hash: %w", err)
	}
	return h, nil
}

// TxLink formats a block-explorer link for hash.
func TxLink(explorerURL string, hash common.Hash) string {
	return strings.TrimRight(explorerURL, "/") + "/tx/" + hash.Hex()
}
