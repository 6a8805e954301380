package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

// auditABI is the single method of the audit contract the oracle calls.
const auditABI = `[{
	"inputs": [
		{"internalType": "string", "name": "_date", "type": "string"},
		{"internalType": "string", "name": "_status", "type": "string"},
		{"internalType": "uint256", "name": "_score", "type": "uint256"}
	],
	"name": "recordAudit",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// Result messages returned instead of errors.
const (
	MsgNoPrivateKey     = "Error: No Private Key configured"
	MsgConnectionFailed = "Error: Web3 Connection Failed"
	msgBlockchainError  = "Blockchain Error: "
)

// Config holds the parameters of the audit contract and its chain.
type Config struct {
	Enabled         bool
	RPCURL          string
	ChainID         int64
	ContractAddress string
	GasLimit        uint64
	ExplorerURL     string
	Timeout         time.Duration
}

// EthereumWriter implements domain.LedgerWriter by sending recordAudit
// transactions with a legacy gas-priced transaction.
type EthereumWriter struct {
	cfg      Config
	key      *ecdsa.PrivateKey
	from     common.Address
	contract common.Address
	abi      abi.ABI
	logger   *slog.Logger
}

// NewEthereumWriter creates a writer. key may be nil, in which case every
// RecordAudit call reports MsgNoPrivateKey.
func NewEthereumWriter(cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) (*EthereumWriter, error) {
	parsed, err := abi.JSON(strings.NewReader(auditABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse abi: %w", err)
	}
	if cfg.ContractAddress != "" && !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("ledger: invalid contract address %q: %w", cfg.ContractAddress, domain.ErrValidation)
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 100000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	w := &EthereumWriter{
		cfg:      cfg,
		key:      key,
		contract: common.HexToAddress(cfg.ContractAddress),
		abi:      parsed,
		logger:   logger.With(slog.String("component", "ledger")),
	}
	if key != nil {
		w.from = ethcrypto.PubkeyToAddress(key.PublicKey)
	}
	return w, nil
}

// Enabled reports whether audits are written on publish.
func (w *EthereumWriter) Enabled() bool {
	return w.cfg.Enabled
}

// From returns the signing address, or the zero address without a key.
func (w *EthereumWriter) From() common.Address {
	return w.from
}

// RecordAudit writes (date, verdict, score×100) to the audit contract and
// returns the explorer link of the transaction. Failures are reported as a
// message string.
func (w *EthereumWriter) RecordAudit(ctx context.Context, date string, verdict domain.Verdict, score float64) string {
	if w.key == nil {
		return MsgNoPrivateKey
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, w.cfg.RPCURL)
	if err != nil {
		w.logger.WarnContext(ctx, "rpc dial failed", slog.String("error", err.Error()))
		return MsgConnectionFailed
	}
	defer client.Close()

	if _, err := client.ChainID(ctx); err != nil {
		w.logger.WarnContext(ctx, "rpc unreachable", slog.String("error", err.Error()))
		return MsgConnectionFailed
	}

	hash, err := w.send(ctx, client, date, verdict, score)
	if err != nil {
		w.logger.ErrorContext(ctx, "record audit failed",
			slog.String("date", date),
			slog.String("error", err.Error()),
		)
		return msgBlockchainError + err.Error()
	}

	w.logger.InfoContext(ctx, "audit recorded on chain",
		slog.String("date", date),
		slog.String("verdict", string(verdict)),
		slog.String("tx", hash.Hex()),
	)
	return TxLink(w.cfg.ExplorerURL, hash)
}

func (w *EthereumWriter) send(ctx context.Context, client *ethclient.Client, date string, verdict domain.Verdict, score float64) (common.Hash, error) {
	data, err := w.abi.Pack("recordAudit", date, string(verdict), ScoreUnits(score))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack call: %w", err)
	}
	nonce, err := client.PendingNonceAt(ctx, w.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &w.contract,
		Value:    big.NewInt(0),
		Gas:      w.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(w.cfg.ChainID)), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send: %w", err)
	}
	return signed.Hash(), nil
}

// Info reports the contract configuration and whether the RPC endpoint
// answers. Connectivity is only probed when the writer is enabled.
func (w *EthereumWriter) Info(ctx context.Context) domain.ContractInfo {
	info := domain.ContractInfo{
		ContractAddress: w.cfg.ContractAddress,
		RPCURL:          w.cfg.RPCURL,
		ChainID:         w.cfg.ChainID,
		HasPrivateKey:   w.key != nil,
		Enabled:         w.cfg.Enabled,
	}
	if !w.cfg.Enabled {
		return info
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	client, err := ethclient.DialContext(ctx, w.cfg.RPCURL)
	if err != nil {
		return info
	}
	defer client.Close()
	_, err = client.ChainID(ctx)
	info.Connected = err == nil
	return info
}

// ScoreUnits converts a performance ratio into the contract's integer score
// (hundredths of a percent, truncated).
func ScoreUnits(score float64) *big.Int {
	return decimal.NewFromFloat(score).Mul(decimal.NewFromInt(100)).Truncate(0).BigInt()
}
