package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/greenbond-oracle/internal/cache/memory"
	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
	"github.com/alanyoungcy/greenbond-oracle/internal/notify"
	"github.com/alanyoungcy/greenbond-oracle/internal/oracle"
	"github.com/alanyoungcy/greenbond-oracle/internal/sensor"
	memstore "github.com/alanyoungcy/greenbond-oracle/internal/store/memory"
)

type fixedIrradiance struct{ ghi float64 }

func (f fixedIrradiance) DailyIrradiance(context.Context, float64, float64, string) domain.Irradiance {
	return domain.Irradiance{GHI: f.ghi, Source: "fixed"}
}

type journal struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (j *journal) Log(_ context.Context, event string, _ map[string]any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errors.New("journal down")
	}
	j.events = append(j.events, event)
	return nil
}

func (j *journal) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type recordingNotifier struct{ msgs []notify.Message }

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

type blobRecorder struct {
	paths []string
	data  [][]byte
}

func (b *blobRecorder) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.paths = append(b.paths, path)
	b.data = append(b.data, raw)
	return nil
}

type fakeLedger struct {
	enabled bool
	result  string
	calls   int
}

func (f *fakeLedger) RecordAudit(context.Context, string, domain.Verdict, float64) string {
	f.calls++
	return f.result
}

func (f *fakeLedger) Info(context.Context) domain.ContractInfo {
	return domain.ContractInfo{ChainID: 11155111, Enabled: f.enabled}
}

func (f *fakeLedger) Enabled() bool { return f.enabled }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

type fixture struct {
	bonds    *BondService
	oracle   *OracleService
	store    *memstore.Store
	bus      *memory.Bus
	journal  *journal
	notifier *recordingNotifier
	blobs    *blobRecorder
	ledger   *fakeLedger
}

// newFixture wires services over a GHI of 1.0, so a 50 kW bond has a
// theoretical maximum of 40 kWh per day.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		bus:      memory.NewBus(100),
		journal:  &journal{},
		notifier: &recordingNotifier{},
		blobs:    &blobRecorder{},
		ledger:   &fakeLedger{enabled: true, result: "https://sepolia.etherscan.io/tx/0xabc"},
	}
	irr := fixedIrradiance{ghi: 1.0}
	gen := sensor.NewGenerator(7, irr, oracle.SystemEfficiency)
	f.bonds = NewBondService(f.store, f.store, gen, f.journal, f.notifier, 10, discardLogger())
	f.bonds.now = func() time.Time { return fixedNow }

	engine := oracle.NewEngine(f.store, f.store, irr, discardLogger(),
		oracle.WithClock(func() time.Time { return fixedNow }))
	f.oracle = NewOracleService(engine, OracleDeps{
		Bus:      f.bus,
		Audit:    f.journal,
		Blobs:    f.blobs,
		Ledger:   f.ledger,
		Notifier: f.notifier,
	}, discardLogger())
	f.oracle.now = func() time.Time { return fixedNow }
	return f
}

func rate(v float64) *float64 { return &v }

func (f *fixture) createBond(t *testing.T, id string) domain.Bond {
	t.Helper()
	b, err := f.bonds.Create(context.Background(), CreateBondInput{
		ID:               id,
		Name:             "Test Farm",
		CapacityKW:       50,
		Threshold:        75,
		BaseInterestRate: rate(5.0),
	})
	require.NoError(t, err)
	return b
}

func TestCreateBond(t *testing.T) {
	f := newFixture(t)
	b := f.createBond(t, "BOND_02")

	assert.Equal(t, "BOND_02", b.ID)
	assert.Equal(t, domain.ProfileDegrading, b.Profile)
	assert.Equal(t, 5.0, b.InterestRate)
	assert.Equal(t, 5.0, b.InitialInterestRate)
	assert.Empty(t, b.AuditLog)

	samples, err := f.store.Samples(context.Background(), "BOND_02")
	require.NoError(t, err)
	require.Len(t, samples, 10)
	assert.Equal(t, "2024-06-21", samples[0].Date)
	assert.Equal(t, "2024-06-30", samples[9].Date)

	assert.Equal(t, []string{"bond_created"}, f.journal.events)
	require.Len(t, f.notifier.msgs, 1)
	assert.Equal(t, notify.EventBondCreated, f.notifier.msgs[0].Event)
}

func TestCreateBondDefaults(t *testing.T) {
	f := newFixture(t)
	b, err := f.bonds.Create(context.Background(), CreateBondInput{
		Name:       "Anonymous Farm",
		CapacityKW: 10,
		Threshold:  70,
	})
	require.NoError(t, err)
	assert.Regexp(t, `^BOND-[0-9A-F]{6}$`, b.ID)
	assert.Equal(t, DefaultInterestRate, b.InterestRate)
	assert.Equal(t, domain.ProfileNormal, b.Profile)
}

func TestCreateBondErrors(t *testing.T) {
	f := newFixture(t)
	f.createBond(t, "B1")

	_, err := f.bonds.Create(context.Background(), CreateBondInput{ID: "B1", Name: "Dup", CapacityKW: 1, Threshold: 50})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = f.bonds.Create(context.Background(), CreateBondInput{Name: "", CapacityKW: -1, Threshold: 120})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "capacity_kw must be positive")
	assert.Contains(t, err.Error(), "threshold must be between 0 and 100")

	_, err = f.bonds.Create(context.Background(), CreateBondInput{Name: "x", CapacityKW: 1, Profile: "SUNNY"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSeedSkipsExisting(t *testing.T) {
	f := newFixture(t)
	inputs := []CreateBondInput{
		{ID: "BOND_01", Name: "A", CapacityKW: 10, Threshold: 75},
		{ID: "BOND_03", Name: "C", CapacityKW: 10, Threshold: 80},
	}
	require.NoError(t, f.bonds.Seed(context.Background(), inputs))
	require.NoError(t, f.bonds.Seed(context.Background(), inputs))

	n, err := f.bonds.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bonds, err := f.bonds.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileHighPerformance, bonds[0].Profile)
	assert.Equal(t, domain.ProfileVolatile, bonds[1].Profile)
}

func TestAuditPenaltyFansOut(t *testing.T) {
	f := newFixture(t)
	f.createBond(t, "B1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := f.oracle.Subscribe(ctx, "B1")
	require.NoError(t, err)

	rec, err := f.oracle.Audit(context.Background(), "B1", "2024-06-30", rate(20))
	require.NoError(t, err)
	assert.Equal(t, 50.0, rec.PerformanceRatio)
	assert.Equal(t, domain.VerdictPenalty, rec.Verdict)

	select {
	case raw := <-updates:
		var evt struct {
			Type   string             `json:"type"`
			BondID string             `json:"bond_id"`
			Data   domain.AuditRecord `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &evt))
		assert.Equal(t, oracle.FeedTypeOracleUpdate, evt.Type)
		assert.Equal(t, "B1", evt.BondID)
		assert.Equal(t, 50.0, evt.Data.PerformanceRatio)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
	assert.Equal(t, 1, f.bus.StreamLen(domain.OracleUpdatesStream))
	assert.Equal(t, []string{"bond_created", "audit_computed"}, f.journal.events)

	last := f.notifier.msgs[len(f.notifier.msgs)-1]
	assert.Equal(t, notify.EventPenalty, last.Event)
	assert.Equal(t, "Penalty: B1", last.Title)
}

func TestAuditCompliantDoesNotAlert(t *testing.T) {
	f := newFixture(t)
	f.createBond(t, "B1")
	before := len(f.notifier.msgs)

	rec, err := f.oracle.Audit(context.Background(), "B1", "2024-06-30", rate(34))
	require.NoError(t, err)
	assert.Equal(t, 85.0, rec.PerformanceRatio)
	assert.Equal(t, domain.VerdictCompliant, rec.Verdict)
	assert.Len(t, f.notifier.msgs, before)
}

func TestAuditSideChannelFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.createBond(t, "B1")
	f.journal.fail = true

	_, err := f.oracle.Audit(context.Background(), "B1", "2024-06-30", rate(34))
	assert.NoError(t, err)
}

func TestAuditErrors(t *testing.T) {
	f := newFixture(t)
	f.createBond(t, "B1")

	_, err := f.oracle.Audit(context.Background(), "missing", "2024-06-30", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.oracle.Audit(context.Background(), "B1", "2019-01-01", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPublish(t *testing.T) {
	f := newFixture(t)
	f.createBond(t, "B1")

	_, err := f.oracle.Publish(context.Background(), "B1", "2024-06-30")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.ledger.calls)

	_, err = f.oracle.Audit(context.Background(), "B1", "2024-06-30", rate(34))
	require.NoError(t, err)
	res, err := f.oracle.Publish(context.Background(), "B1", "2024-06-30")
	require.NoError(t, err)

	assert.Regexp(t, `^https://sepolia\.etherscan\.io/tx/0x[0-9a-f]{64}$`, res.TxLink)
	assert.Equal(t, res.TxLink, res.Record.TxLink)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/0xabc", res.LedgerResult)
	assert.Equal(t, 1, f.ledger.calls)
	assert.Contains(t, f.journal.events, "audit_published")

	log, err := f.oracle.AuditLog(context.Background(), "B1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, res.TxLink, log[0].TxLink)
}

func TestPublishLedgerDisabled(t *testing.T) {
	f := newFixture(t)
	f.ledger.enabled = false
	f.createBond(t, "B1")
	_, err := f.oracle.Audit(context.Background(), "B1", "2024-06-30", rate(34))
	require.NoError(t, err)

	res, err := f.oracle.Publish(context.Background(), "B1", "2024-06-30")
	require.NoError(t, err)
	assert.Empty(t, res.LedgerResult)
	assert.Zero(t, f.ledger.calls)

	info, ok := f.oracle.ContractInfo(context.Background())
	assert.True(t, ok)
	assert.False(t, info.Enabled)
}

func TestRunBatchArchivesReport(t *testing.T) {
	f := newFixture(t)
	f.createBond(t, "B1")

	report, err := f.oracle.RunBatch(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, 10, report.TotalDays)
	assert.Equal(t, "10 Days", report.Period)
	require.Len(t, report.AuditLog, 10)

	require.Len(t, f.blobs.paths, 1)
	assert.Equal(t, "reports/B1/batch-20240630T120000Z.json", f.blobs.paths[0])
	var archived domain.BatchReport
	require.NoError(t, json.NewDecoder(bytes.NewReader(f.blobs.data[0])).Decode(&archived))
	assert.Equal(t, report.AveragePR, archived.AveragePR)
	assert.Contains(t, f.journal.events, "batch_completed")

	sum, err := f.oracle.PenaltySummary(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, 10, sum.TotalDays)
	assert.Equal(t, sum.TotalDays, sum.PenaltyDays+sum.CompliantDays)
}

func TestRunBatchBroadcastsFinalState(t *testing.T) {
	f := newFixture(t)
	f.createBond(t, "B1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := f.oracle.Subscribe(ctx, "B1")
	require.NoError(t, err)

	report, err := f.oracle.RunBatch(context.Background(), "B1")
	require.NoError(t, err)

	select {
	case raw := <-updates:
		var evt struct {
			Type string             `json:"type"`
			Data domain.AuditRecord `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &evt))
		assert.Equal(t, oracle.FeedTypeOracleUpdate, evt.Type)
		assert.Equal(t, "2024-06-30", evt.Data.Date)
		assert.Equal(t, report.FinalRate, evt.Data.InterestRateAfter)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
	assert.Equal(t, 1, f.bus.StreamLen(domain.OracleUpdatesStream))
}

func TestSubscribeUnknownBond(t *testing.T) {
	f := newFixture(t)
	_, err := f.oracle.Subscribe(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerOutcome(t *testing.T) {
	assert.Equal(t, "disabled", ledgerOutcome(""))
	assert.Equal(t, "sent", ledgerOutcome("https://sepolia.etherscan.io/tx/0x1"))
	assert.Equal(t, "error", ledgerOutcome("Error: Web3 Connection Failed"))
}
