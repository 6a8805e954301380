package domain

import "context"

// Irradiance is the daily global horizontal irradiance at a site in
// kWh/m²/day.
type Irradiance struct {
	GHI      float64
	Source   string
	Fallback bool
}

// IrradianceSource supplies daily irradiance for a coordinate. It never fails;
// when real data cannot be obtained it reports a fallback value instead.
type IrradianceSource interface {
	DailyIrradiance(ctx context.Context, lat, lon float64, date string) Irradiance
}

// LedgerWriter records audit outcomes on an external ledger. The returned
// string is either a transaction link or a human-readable error message.
type LedgerWriter interface {
	RecordAudit(ctx context.Context, date string, verdict Verdict, score float64) string
	Info(ctx context.Context) ContractInfo
	Enabled() bool
}

// ContractInfo describes the ledger contract the oracle writes to.
type ContractInfo struct {
	ContractAddress string `json:"contract_address"`
	RPCURL          string `json:"rpc_url"`
	ChainID         int64  `json:"chain_id"`
	Connected       bool   `json:"is_connected"`
	HasPrivateKey   bool   `json:"has_private_key"`
	Enabled         bool   `json:"enabled"`
}
