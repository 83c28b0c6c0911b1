package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mevforge/searcher/internal/chain"
	"github.com/mevforge/searcher/internal/config"
	"github.com/mevforge/searcher/internal/notifier"
	"github.com/mevforge/searcher/internal/risk"
	"github.com/mevforge/searcher/internal/state"
	"github.com/mevforge/searcher/internal/types"
)

func eth(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func gwei(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 9)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the fake clock instead of blocking.
func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

type fakeReader struct {
	pools    map[types.PairID]types.Pool
	receipts map[string]*chain.Receipt
	gasPrice sdkmath.Int
	chainID  uint64
	block    uint64

	// balances is consumed one read at a time; pre-trade first, then
	// post-settlement.
	balances     []sdkmath.Int
	balanceReads int
}

func (r *fakeReader) GetPoolReserves(_ context.Context, id types.PairID) (types.Pool, error) {
	p, ok := r.pools[id]
	if !ok {
		return types.Pool{}, fmt.Errorf("no such pool %s", id)
	}
	return p, nil
}

func (r *fakeReader) GasPrice(context.Context) (sdkmath.Int, error) { return r.gasPrice, nil }
func (r *fakeReader) BlockNumber(context.Context) (uint64, error)  { return r.block, nil }
func (r *fakeReader) ChainID(context.Context) (uint64, error)      { return r.chainID, nil }

func (r *fakeReader) TokenBalance(context.Context, string) (sdkmath.Int, error) {
	r.balanceReads++
	if len(r.balances) == 0 {
		return sdkmath.ZeroInt(), nil
	}
	next := r.balances[0]
	r.balances = r.balances[1:]
	return next, nil
}

func (r *fakeReader) TransactionReceipt(_ context.Context, hash string) (*chain.Receipt, error) {
	if rec, ok := r.receipts[hash]; ok {
		return rec, nil
	}
	return nil, chain.ErrNotMined
}

func (r *fakeReader) Allowance(context.Context, string) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	sent     []string
	approved []string
	onSend   func(n int) string // maps send ordinal to tx hash

	bundleAttempts int
	bundleTarget   uint64
	bundleErr      error
	inclusion      chain.BundleInclusion
	statusErr      error
}

func (s *fakeSubmitter) SignAndSend(_ context.Context, _ []byte, _ sdkmath.Int, _ uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := s.onSend(len(s.sent) + 1)
	s.sent = append(s.sent, hash)
	return hash, nil
}

func (s *fakeSubmitter) Approve(_ context.Context, token string, _ sdkmath.Int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved = append(s.approved, token)
	return "0xapprove", nil
}

func (s *fakeSubmitter) SubmitBundle(_ context.Context, _ [][]byte, target uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundleAttempts++
	s.bundleTarget = target
	if s.bundleErr != nil {
		return "", s.bundleErr
	}
	return "0xbundle", nil
}

func (s *fakeSubmitter) BundleStatus(context.Context, string, uint64) (chain.BundleInclusion, error) {
	if s.statusErr != nil {
		return chain.BundleInclusion{}, s.statusErr
	}
	return s.inclusion, nil
}

func (s *fakeSubmitter) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeLoans struct {
	executed int
}

func (l *fakeLoans) RequestLoan(_ context.Context, token string, amount sdkmath.Int) (*types.FlashLoanTicket, error) {
	return &types.FlashLoanTicket{
		LoanID: "loan-1",
		Token:  token,
		Amount: amount,
		Fee:    amount.QuoRaw(2000),
		Status: types.LoanPending,
	}, nil
}

func (l *fakeLoans) Execute(_ context.Context, ticket *types.FlashLoanTicket, _ []byte) (string, error) {
	if err := ticket.Advance(types.LoanExecuting); err != nil {
		return "", err
	}
	l.executed++
	if err := ticket.Advance(types.LoanCompleted); err != nil {
		return "", err
	}
	return "0xloan-tx", nil
}

type fixture struct {
	coord     *Coordinator
	reader    *fakeReader
	submitter *fakeSubmitter
	loans     *fakeLoans
	store     *state.MemoryStore
	clock     *testClock
	params    config.Parameters
}

func newFixture(t *testing.T, dryRun bool) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	params := config.DefaultParameters()

	reader := &fakeReader{
		pools: map[types.PairID]types.Pool{
			"WETH/DAI@univ2": {
				PairID:     "WETH/DAI@univ2",
				TokenIn:    "WETH",
				TokenOut:   "DAI",
				ReserveIn:  eth(10_000),
				ReserveOut: eth(20_000_000),
				FeeBps:     30,
				LastUpdate: clock.now,
			},
		},
		receipts: make(map[string]*chain.Receipt),
		gasPrice: gwei(20),
		chainID:  1,
		block:    1000,
	}
	// The relay is down by default; sandwich tests that want the bundle
	// path configure the submitter explicitly.
	submitter := &fakeSubmitter{
		onSend:    func(n int) string { return fmt.Sprintf("0xsend-%d", n) },
		bundleErr: errors.New("relay down"),
	}
	loans := &fakeLoans{}
	store := state.NewMemoryStore()

	riskMgr, err := risk.NewManager(params, store, clock)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	validator := NewValidator(reader, params, clock, 1)
	coord := NewCoordinator(reader, submitter, loans, validator, riskMgr, notifier.Nop{}, params, clock, dryRun)

	return &fixture{
		coord: coord, reader: reader, submitter: submitter,
		loans: loans, store: store, clock: clock, params: params,
	}
}

func sandwichOpp(clock *testClock) *types.Opportunity {
	return &types.Opportunity{
		ID:                "opp-sandwich",
		Strategy:          types.StrategySandwich,
		TokenIn:           "WETH",
		TokenOut:          "DAI",
		FrontrunAmount:    eth(20),
		BackrunAmount:     eth(19),
		ExpectedProfit:    eth(1),
		ExpectedNetProfit: eth(1),
		GasPrice:          gwei(20),
		GasEstimate:       400_000,
		Pools:             []types.PairID{"WETH/DAI@univ2"},
		VictimHash:        "0xvictim",
		Deadline:          clock.Now().Add(10 * time.Minute),
		TargetBlock:       1001,
		Payload:           []byte{0x01},
		CreatedAt:         clock.Now(),
	}
}

func arbOpp(clock *testClock) *types.Opportunity {
	return &types.Opportunity{
		ID:                "opp-arb",
		Strategy:          types.StrategyArbitrage,
		TokenIn:           "WETH",
		TokenOut:          "DAI",
		AmountIn:          eth(10),
		ExpectedProfit:    eth(1),
		ExpectedNetProfit: eth(1),
		GasPrice:          gwei(20),
		GasEstimate:       250_000,
		Pools:             []types.PairID{"WETH/DAI@univ2"},
		Deadline:          clock.Now().Add(10 * time.Minute),
		TargetBlock:       1002,
		Payload:           []byte{0x02},
		CreatedAt:         clock.Now(),
	}
}

func TestSandwichSuccessPath(t *testing.T) {
	f := newFixture(t, false)
	opp := sandwichOpp(f.clock)

	f.reader.receipts["0xvictim"] = &chain.Receipt{TxHash: "0xvictim", Success: true}
	f.reader.receipts["0xsend-2"] = &chain.Receipt{
		TxHash: "0xsend-2", BlockNumber: 1001, GasUsed: 380_000, Success: true,
	}
	// Balance moves from 50 to 51 over the attempt.
	f.reader.balances = []sdkmath.Int{eth(50), eth(51)}

	result := f.coord.Execute(context.Background(), opp)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.State != types.ExecutionVerified {
		t.Errorf("expected VERIFIED, got %s", result.State)
	}
	if f.submitter.bundleAttempts != 1 {
		t.Errorf("expected one bundle attempt before the fallback, got %d", f.submitter.bundleAttempts)
	}
	if f.submitter.sendCount() != 2 {
		t.Errorf("expected frontrun and backrun, got %d sends", f.submitter.sendCount())
	}
	if !result.Profit.Equal(eth(1)) {
		t.Errorf("expected realized profit 1, got %s", result.Profit)
	}
	// Zero allowance means an approval had to happen first.
	if len(f.submitter.approved) != 1 {
		t.Errorf("expected one approval, got %d", len(f.submitter.approved))
	}
	if got := len(f.store.Trades()); got != 1 {
		t.Errorf("expected exactly one recorded trade, got %d", got)
	}
}

func TestSandwichAbandonsBackrunWhenVictimNotIncluded(t *testing.T) {
	f := newFixture(t, false)
	opp := sandwichOpp(f.clock)
	// Victim receipt never appears.

	result := f.coord.Execute(context.Background(), opp)
	if result.Success {
		t.Fatal("expected failure when victim never lands")
	}
	if result.State != types.ExecutionFailed {
		t.Errorf("expected FAILED, got %s", result.State)
	}
	// The backrun must never be submitted: one send only, the frontrun.
	if f.submitter.sendCount() != 1 {
		t.Errorf("expected only the frontrun to be sent, got %d sends", f.submitter.sendCount())
	}
	if got := len(f.store.Trades()); got != 1 {
		t.Errorf("failed attempt must still be recorded exactly once, got %d", got)
	}
	rec := f.store.Trades()[0]
	if rec.Success {
		t.Error("recorded trade must reflect the failure")
	}
	if rec.Error == "" {
		t.Error("recorded trade must carry the failure reason")
	}
}

func TestFlashLoanPathForArbitrage(t *testing.T) {
	f := newFixture(t, false)
	opp := arbOpp(f.clock)

	f.reader.receipts["0xloan-tx"] = &chain.Receipt{
		TxHash: "0xloan-tx", BlockNumber: 1002, GasUsed: 240_000, Success: true,
	}
	f.reader.balances = []sdkmath.Int{eth(0), eth(1)}

	result := f.coord.Execute(context.Background(), opp)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !result.Profit.Equal(eth(1)) {
		t.Errorf("expected realized profit 1, got %s", result.Profit)
	}
	if f.loans.executed != 1 {
		t.Errorf("expected one flash loan execution, got %d", f.loans.executed)
	}
	if f.submitter.sendCount() != 0 {
		t.Errorf("flash loan path must not use raw sends, got %d", f.submitter.sendCount())
	}
	if result.GasUsed != 240_000 {
		t.Errorf("expected gas used from receipt, got %d", result.GasUsed)
	}
}

func TestRevertedSettlementFails(t *testing.T) {
	f := newFixture(t, false)
	opp := arbOpp(f.clock)

	f.reader.receipts["0xloan-tx"] = &chain.Receipt{TxHash: "0xloan-tx", Success: false}
	f.reader.balances = []sdkmath.Int{eth(0)}

	result := f.coord.Execute(context.Background(), opp)
	if result.Success {
		t.Fatal("reverted settlement must fail the attempt")
	}
	if got := len(f.store.Trades()); got != 1 {
		t.Errorf("expected exactly one recorded trade, got %d", got)
	}
}

func TestProfitShortfallReportedTruthfully(t *testing.T) {
	f := newFixture(t, false)
	opp := arbOpp(f.clock)

	// Realized profit is 10% of expected: warned about, not upgraded and
	// not failed.
	realized := eth(1).QuoRaw(10)
	f.reader.receipts["0xloan-tx"] = &chain.Receipt{TxHash: "0xloan-tx", Success: true}
	f.reader.balances = []sdkmath.Int{eth(20), eth(20).Add(realized)}

	result := f.coord.Execute(context.Background(), opp)
	if !result.Success {
		t.Fatalf("shortfall is still a success: %+v", result)
	}
	if !result.Profit.Equal(realized) {
		t.Errorf("profit must be the realized amount, got %s", result.Profit)
	}
}

func TestValidationRejectionIsNotRecorded(t *testing.T) {
	f := newFixture(t, false)
	opp := arbOpp(f.clock)

	// Live gas is far past the 1.1x tolerance.
	f.reader.gasPrice = gwei(100)

	result := f.coord.Execute(context.Background(), opp)
	if result.Success {
		t.Fatal("expected rejection on gas drift")
	}
	if got := len(f.store.Trades()); got != 0 {
		t.Errorf("pre-flight rejections must not be recorded, got %d trades", got)
	}
	if f.submitter.sendCount() != 0 || f.loans.executed != 0 {
		t.Error("no funds may move after a validation rejection")
	}
}

func TestWrongChainRejected(t *testing.T) {
	f := newFixture(t, false)
	f.reader.chainID = 5
	result := f.coord.Execute(context.Background(), arbOpp(f.clock))
	if result.Success {
		t.Fatal("expected rejection on chain id mismatch")
	}
	if f.loans.executed != 0 {
		t.Error("no funds may move on the wrong chain")
	}
}

func TestDryRunSkipsSubmission(t *testing.T) {
	f := newFixture(t, true)
	opp := arbOpp(f.clock)

	result := f.coord.Execute(context.Background(), opp)
	if !result.Success {
		t.Fatalf("dry run should succeed: %+v", result)
	}
	if f.submitter.sendCount() != 0 || f.loans.executed != 0 || len(f.submitter.approved) != 0 {
		t.Error("dry run must not touch the chain")
	}
	if f.reader.balanceReads != 0 {
		t.Errorf("dry run must not read balances, got %d reads", f.reader.balanceReads)
	}
	if !result.Profit.Equal(eth(1)) {
		t.Errorf("dry run result still reports the expected profit, got %s", result.Profit)
	}
	trades := f.store.Trades()
	if len(trades) != 1 {
		t.Fatalf("dry run still records its attempt, got %d", len(trades))
	}
	// Nothing settled, so the risk ledger must stay neutral.
	if trades[0].ProfitLoss != 0 {
		t.Errorf("dry run must record zero P&L, got %v", trades[0].ProfitLoss)
	}
}

func TestRealizedLossFeedsRiskLedger(t *testing.T) {
	f := newFixture(t, false)
	opp := arbOpp(f.clock)

	// The settlement lands but the balance ends 2 below where it started.
	f.reader.receipts["0xloan-tx"] = &chain.Receipt{TxHash: "0xloan-tx", Success: true}
	f.reader.balances = []sdkmath.Int{eth(10), eth(8)}

	result := f.coord.Execute(context.Background(), opp)
	if !result.Success {
		t.Fatalf("settled attempt stays a success: %+v", result)
	}
	if !result.Profit.Equal(eth(-2)) {
		t.Errorf("expected realized loss of 2, got %s", result.Profit)
	}

	trades := f.store.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected one recorded trade, got %d", len(trades))
	}
	if trades[0].ProfitLoss != -2 {
		t.Errorf("recorded P&L must be the realized loss, got %v", trades[0].ProfitLoss)
	}
	if got := f.coord.riskMgr.Snapshot().DailyLoss; got != 2 {
		t.Errorf("daily loss must accrue the realized loss, got %v", got)
	}
}

func TestSandwichBundleIncluded(t *testing.T) {
	f := newFixture(t, false)
	opp := sandwichOpp(f.clock)

	f.submitter.bundleErr = nil
	f.submitter.inclusion = chain.BundleInclusion{
		Included:    true,
		BlockNumber: 1001,
		TxHashes:    []string{"0xb-front", "0xb-back"},
	}
	f.reader.block = 1001
	f.reader.receipts["0xb-back"] = &chain.Receipt{
		TxHash: "0xb-back", BlockNumber: 1001, GasUsed: 390_000, Success: true,
	}
	f.reader.balances = []sdkmath.Int{eth(50), eth(51)}

	result := f.coord.Execute(context.Background(), opp)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if f.submitter.bundleAttempts != 1 || f.submitter.bundleTarget != 1001 {
		t.Errorf("expected one bundle at block 1001, got %d at %d",
			f.submitter.bundleAttempts, f.submitter.bundleTarget)
	}
	// An included bundle means no individual legs.
	if f.submitter.sendCount() != 0 {
		t.Errorf("bundle path must not use raw sends, got %d", f.submitter.sendCount())
	}
	if !result.Profit.Equal(eth(1)) {
		t.Errorf("expected realized profit 1, got %s", result.Profit)
	}
	if result.GasUsed != 390_000 {
		t.Errorf("expected gas used from the settlement receipt, got %d", result.GasUsed)
	}
}

func TestSandwichBundleNotIncludedFailsCleanly(t *testing.T) {
	f := newFixture(t, false)
	opp := sandwichOpp(f.clock)

	f.submitter.bundleErr = nil
	f.submitter.inclusion = chain.BundleInclusion{Included: false}
	f.reader.block = 1001

	result := f.coord.Execute(context.Background(), opp)
	if result.Success {
		t.Fatal("a lost bundle auction must fail the attempt")
	}
	// Losing the auction moves no funds at all.
	if f.submitter.sendCount() != 0 {
		t.Errorf("a relay-accepted bundle must not fall back to legs, got %d sends", f.submitter.sendCount())
	}
	trades := f.store.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected one recorded trade, got %d", len(trades))
	}
	if trades[0].Success || trades[0].Error == "" {
		t.Errorf("recorded trade must carry the failure: %+v", trades[0])
	}
}

func TestStatsTrackAttempts(t *testing.T) {
	f := newFixture(t, false)

	f.reader.receipts["0xloan-tx"] = &chain.Receipt{TxHash: "0xloan-tx", Success: true}
	f.reader.balances = []sdkmath.Int{eth(0), eth(1), eth(1)}
	f.coord.Execute(context.Background(), arbOpp(f.clock))

	// Second attempt fails: victim never included.
	f.coord.Execute(context.Background(), sandwichOpp(f.clock))

	stats := f.coord.Stats()
	if stats.Attempts != 2 || stats.Successes != 1 || stats.Failures != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if !stats.TotalProfit.Equal(eth(1)) {
		t.Errorf("expected total profit 1, got %s", stats.TotalProfit)
	}
}

func TestLeaseSerializesSameStrategyAndPair(t *testing.T) {
	table := NewLeaseTable()
	opp := &types.Opportunity{Strategy: types.StrategySandwich, Pools: []types.PairID{"WETH/DAI@univ2"}}

	release, err := table.Acquire(opp)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := table.Acquire(opp); err == nil {
		t.Fatal("second acquire of a held lease must fail")
	}

	// A different strategy against the same pair is a different lease.
	other := &types.Opportunity{Strategy: types.StrategyArbitrage, Pools: []types.PairID{"WETH/DAI@univ2"}}
	releaseOther, err := table.Acquire(other)
	if err != nil {
		t.Fatalf("different strategy must not contend: %v", err)
	}
	releaseOther()

	release()
	release() // idempotent
	if _, err := table.Acquire(opp); err != nil {
		t.Errorf("released lease must be acquirable: %v", err)
	}
}
