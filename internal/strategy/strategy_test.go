package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradingAgent/internal/agentconfig"
	"tradingAgent/internal/domain"
	"tradingAgent/internal/risk"
	"tradingAgent/internal/strategy/indicators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockProvider serves canned history per ticker.
type mockProvider struct {
	mu     sync.Mutex
	series map[string][]*domain.Kline
	errs   map[string]error
	block  bool
	calls  map[string]int
}

func newMockProvider() *mockProvider {
	return &mockProvider{series: map[string][]*domain.Kline{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (m *mockProvider) History(ctx context.Context, symbol, period, interval string) ([]*domain.Kline, error) {
	m.mu.Lock()
	m.calls[symbol]++
	block := m.block
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	return m.series[symbol], nil
}

// bullishSeries alternates +1.1 / -0.9 closes so that any 14-change window
// holds seven gains and seven losses: RSI 55, rising EMAs, close above VWAP
// and constant volume.
func bullishSeries(n int) []*domain.Kline {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i > 0 {
			if i%2 == 1 {
				price += 1.1
			} else {
				price -= 0.9
			}
		}
		klines[i] = &domain.Kline{OpenTime: start.AddDate(0, 0, i), Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000}
	}
	return klines
}

func bearishSeries(n int) []*domain.Kline {
	klines := bullishSeries(n)
	for i, k := range klines {
		p := 200 - float64(i)
		k.Open, k.High, k.Low, k.Close = p, p+1, p-1, p
	}
	return klines
}

func testUniverse(t *testing.T) *agentconfig.Universe {
	t.Helper()
	u, err := agentconfig.ParseUniverse([]byte(`
ticker_suffix: ".NS"
sectors:
  - name: IT
    symbols: ["INFY.NS", "TCS.NS"]
  - name: NIFTY50
    symbols: ["TCS.NS", "RELIANCE.NS", "SBIN.NS"]
security_ids:
  INFY.NS: "1594"
`))
	require.NoError(t, err)
	return u
}

func testConfig() domain.AgentConfig {
	return domain.AgentConfig{
		AllowedSectors:     []string{"IT", "NIFTY50"},
		MaxCapitalPerTrade: 5,
		MaxTradesPerDay:    3,
		RiskPerTrade:       2,
		ProfitBookingRule:  domain.Rule{Type: domain.RuleTargetPercent, Value: 3},
		StopLossRule:       domain.Rule{Type: domain.RuleFixedPercent, Value: 1.5},
		TradingMode:        domain.ModePaper,
		ExecutionMode:      domain.ExecManualConfirm,
		CapitalAvailable:   1000000,
	}
}

func newTestEngine(t *testing.T, p *mockProvider) *Engine {
	t.Helper()
	e, err := New(Config{CallTimeout: time.Second}, p, testUniverse(t), risk.NewRiskManager(risk.DefaultRiskConfig()), &mockLogger{})
	require.NoError(t, err)
	return e
}

func TestNew(t *testing.T) {
	u := testUniverse(t)
	rm := risk.NewRiskManager(risk.DefaultRiskConfig())

	_, err := New(Config{}, nil, u, rm, &mockLogger{})
	assert.Error(t, err)
	_, err = New(Config{}, newMockProvider(), u, rm, nil)
	assert.Error(t, err)

	e, err := New(Config{}, newMockProvider(), u, rm, &mockLogger{})
	require.NoError(t, err)
	assert.Equal(t, "3mo", e.cfg.HistoryPeriod)
	assert.Equal(t, "1d", e.cfg.HistoryInterval)
}

func TestEvaluate_BullishSetupQualifies(t *testing.T) {
	tests := []struct {
		mode        domain.ExecutionMode
		instruction domain.ExecutionInstruction
	}{
		{domain.ExecManualConfirm, domain.InstructionWaitForUser},
		{domain.ExecAutoRuled, domain.InstructionForward},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			e := newTestEngine(t, newMockProvider())
			cfg := testConfig()
			cfg.ExecutionMode = tt.mode

			sig, err := e.Evaluate(context.Background(), "INFY.NS", "IT", bullishSeries(40), cfg, 0)
			require.NoError(t, err)
			require.NotNil(t, sig)

			assert.Equal(t, domain.SignalQualified, sig.Status)
			assert.Equal(t, tt.instruction, sig.ExecutionInstruction)
			assert.Equal(t, "INFY", sig.Symbol)
			assert.Equal(t, "INFY.NS", sig.Ticker)
			assert.InDelta(t, 55.0, sig.Indicators.RSI, 0.01)
			assert.True(t, sig.Trend.IsBullish)
			assert.Equal(t, 4, sig.Trend.Score)

			assert.Equal(t, 104.9, sig.EntryPrice)
			assert.Equal(t, 103.33, sig.StopLoss)
			assert.Equal(t, 108.05, sig.TargetPrice)
			assert.Equal(t, 2.01, sig.RiskRewardRatio)
			assert.GreaterOrEqual(t, sig.RiskRewardRatio, 1.5)
			assert.Less(t, sig.StopLoss, sig.EntryPrice)
			assert.Less(t, sig.EntryPrice, sig.TargetPrice)
			assert.NotContains(t, sig.Rationale, "failed")
		})
	}
}

func TestEvaluate_RuleFailureRejects(t *testing.T) {
	e := newTestEngine(t, newMockProvider())
	cfg := testConfig()

	sig, err := e.Evaluate(context.Background(), "INFY.NS", "IT", bullishSeries(40), cfg, cfg.MaxTradesPerDay)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalRejected, sig.Status)
	assert.Equal(t, domain.InstructionNone, sig.ExecutionInstruction)
	assert.False(t, sig.RuleChecks.TradeCountOK)
	assert.Contains(t, sig.Rationale, "Rule check(s) failed: trade_count_ok.")
}

func TestEvaluate_NotBullishEmitsNothing(t *testing.T) {
	e := newTestEngine(t, newMockProvider())
	sig, err := e.Evaluate(context.Background(), "INFY.NS", "IT", bearishSeries(40), testConfig(), 0)
	assert.NoError(t, err)
	assert.Nil(t, sig)
}

func TestEvaluate_InsufficientData(t *testing.T) {
	e := newTestEngine(t, newMockProvider())
	_, err := e.Evaluate(context.Background(), "INFY.NS", "IT", bullishSeries(25), testConfig(), 0)
	assert.ErrorIs(t, err, indicators.ErrInsufficientData)
}

func TestScan_DedupesSkipsAndRanks(t *testing.T) {
	p := newMockProvider()
	p.series["INFY.NS"] = bullishSeries(40)
	p.series["TCS.NS"] = bullishSeries(60)
	p.series["RELIANCE.NS"] = bearishSeries(40)
	p.errs["SBIN.NS"] = errors.New("provider down")
	e := newTestEngine(t, p)

	res, err := e.Scan(context.Background(), testConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls["TCS.NS"], "TCS appears in two sectors but is fetched once")
	require.Len(t, res.Signals, 2)
	assert.Equal(t, 2, res.Qualified())
	for _, s := range res.Signals {
		assert.Equal(t, "IT", s.Sector)
	}
	assert.Contains(t, res.Skipped, "SBIN.NS")
	assert.NotContains(t, res.Skipped, "RELIANCE.NS", "non-bullish symbols are not failures")
}

func TestScan_StopsAtDailyCap(t *testing.T) {
	p := newMockProvider()
	for _, tk := range []string{"INFY.NS", "TCS.NS", "RELIANCE.NS", "SBIN.NS"} {
		p.series[tk] = bullishSeries(40)
	}
	e := newTestEngine(t, p)
	cfg := testConfig()
	cfg.MaxTradesPerDay = 2

	res, err := e.Scan(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Qualified())
	assert.Len(t, res.Signals, 2)
	assert.Zero(t, p.calls["RELIANCE.NS"])
	assert.Zero(t, p.calls["SBIN.NS"])
}

func TestScan_ProviderTimeoutSkipsSymbol(t *testing.T) {
	p := newMockProvider()
	p.block = true
	e, err := New(Config{CallTimeout: 10 * time.Millisecond}, p, testUniverse(t), risk.NewRiskManager(risk.DefaultRiskConfig()), &mockLogger{})
	require.NoError(t, err)

	res, err := e.Scan(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Len(t, res.Skipped, 4)
	assert.Contains(t, res.Skipped["INFY.NS"], "timed out")
}

func TestScan_CancelledContextAborts(t *testing.T) {
	p := newMockProvider()
	p.series["INFY.NS"] = bullishSeries(40)
	e := newTestEngine(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Scan(ctx, testConfig())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRank(t *testing.T) {
	a := domain.Signal{Symbol: "A", Status: domain.SignalQualified, RiskRewardRatio: 2.0, Trend: domain.Trend{Score: 3}, Indicators: domain.IndicatorSnapshot{Volume: 100}}
	b := domain.Signal{Symbol: "B", Status: domain.SignalQualified, RiskRewardRatio: 2.0, Trend: domain.Trend{Score: 4}, Indicators: domain.IndicatorSnapshot{Volume: 50}}
	c := domain.Signal{Symbol: "C", Status: domain.SignalRejected, RiskRewardRatio: 3.0}
	d := domain.Signal{Symbol: "D", Status: domain.SignalQualified, RiskRewardRatio: 2.0, Trend: domain.Trend{Score: 3}, Indicators: domain.IndicatorSnapshot{Volume: 200}}

	signals := []domain.Signal{c, a, b}
	Rank(signals)
	assert.Equal(t, []string{"B", "A", "C"}, symbols(signals))

	signals = []domain.Signal{a, c, d, b}
	Rank(signals)
	assert.Equal(t, []string{"B", "D", "A", "C"}, symbols(signals))
}

func symbols(signals []domain.Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.Symbol
	}
	return out
}

func TestDetectTrend(t *testing.T) {
	tests := []struct {
		name    string
		snap    domain.IndicatorSnapshot
		score   int
		bullish bool
	}{
		{"all true", domain.IndicatorSnapshot{Close: 105, EMA9: 104, EMA21: 102, RSI: 55, VWAP: 100, Volume: 900, AvgVolume: 1000}, 4, true},
		{"low volume still bullish", domain.IndicatorSnapshot{Close: 105, EMA9: 104, EMA21: 102, RSI: 55, VWAP: 100, Volume: 700, AvgVolume: 1000}, 3, true},
		{"rsi bounds inclusive", domain.IndicatorSnapshot{Close: 105, EMA9: 104, EMA21: 102, RSI: 70, VWAP: 100, Volume: 800, AvgVolume: 1000}, 4, true},
		{"overbought", domain.IndicatorSnapshot{Close: 105, EMA9: 104, EMA21: 102, RSI: 75, VWAP: 100, Volume: 1000, AvgVolume: 1000}, 3, false},
		{"below vwap", domain.IndicatorSnapshot{Close: 99, EMA9: 104, EMA21: 102, RSI: 50, VWAP: 100, Volume: 1000, AvgVolume: 1000}, 3, false},
		{"bearish ema", domain.IndicatorSnapshot{Close: 105, EMA9: 101, EMA21: 102, RSI: 40, VWAP: 100, Volume: 0, AvgVolume: 1000}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := DetectTrend(&tt.snap)
			assert.Equal(t, tt.score, tr.Score)
			assert.Equal(t, tt.bullish, tr.IsBullish)
		})
	}
}

func TestBuildRationale(t *testing.T) {
	snap := &domain.IndicatorSnapshot{RSI: 55.04}
	bull := domain.Trend{IsBullish: true, BullishEMA: true, RSIInRange: true, AboveVWAP: true, VolumeAdequate: true}
	checks := domain.RuleChecks{SectorAllowed: true, RiskWithinLimit: true, CapitalWithinLimit: true, TradeCountOK: false, RiskRewardOK: false}

	got := BuildRationale(snap, bull, 1.2, checks)
	assert.Equal(t, "Bullish EMA crossover detected (EMA9 > EMA21). RSI at 55.0, within 40-70 range. Price above VWAP. R:R ratio = 1.20. Rule check(s) failed: trade_count_ok, risk_reward_ok.", got)
	assert.Equal(t, got, BuildRationale(snap, bull, 1.2, checks))

	bear := domain.Trend{RSIInRange: true}
	got = BuildRationale(snap, bear, 0, domain.RuleChecks{SectorAllowed: true, RiskWithinLimit: true, CapitalWithinLimit: true, TradeCountOK: true, RiskRewardOK: true})
	assert.Equal(t, "Trend not confirmed: EMA9 below EMA21, price below VWAP. Volume below 80% of average. R:R ratio = 0.00.", got)
}
