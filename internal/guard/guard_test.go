package guard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quantgate/conf"
	"quantgate/internal/calendar"
	"quantgate/internal/model"
	"quantgate/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGuard struct {
	name   string
	pass   bool
	called *[]string
}

func (f *fakeGuard) Name() string { return f.name }

func (f *fakeGuard) Evaluate(_ context.Context, _ *Input) model.GateResult {
	*f.called = append(*f.called, f.name)
	return model.GateResult{Name: f.name, Passed: f.pass, Reason: "fake"}
}

func TestChainOrderAndShortCircuit(t *testing.T) {
	var called []string
	c := NewChain(
		&fakeGuard{name: "a", pass: true, called: &called},
		&fakeGuard{name: "b", pass: false, called: &called},
		&fakeGuard{name: "c", pass: true, called: &called},
	)

	results, failed := c.Evaluate(context.Background(), &Input{})
	require.NotNil(t, failed)
	assert.Equal(t, "b", failed.Name)
	// b失败后c不再执行
	assert.Equal(t, []string{"a", "b"}, called)
	assert.Len(t, results, 2)
}

func TestChainAllPass(t *testing.T) {
	var called []string
	c := NewChain(
		&fakeGuard{name: "a", pass: true, called: &called},
		&fakeGuard{name: "b", pass: true, called: &called},
	)

	results, failed := c.Evaluate(context.Background(), &Input{})
	assert.Nil(t, failed)
	assert.Len(t, results, 2)
}

func testConstraintConfig() conf.ConstraintConfig {
	return conf.ConstraintConfig{MinStopTicks: 10, MaxSpreadTicks: 2, MinRiskReward: 1.5}
}

func constraintInput(sig *model.Signal) *Input {
	return &Input{Signal: sig, Now: time.Now()}
}

func TestConstraintStopTooTight(t *testing.T) {
	g := NewConstraintGuard(testConstraintConfig(), 0.1)
	// 止损距离0.5 < 10×0.1
	r := g.Evaluate(context.Background(), constraintInput(&model.Signal{Entry: 100, Stop: 99.5, Target: 103}))
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonStopTooTight, r.Reason)
}

func TestConstraintSpreadTooWide(t *testing.T) {
	g := NewConstraintGuard(testConstraintConfig(), 0.1)
	spread := 3.0
	in := constraintInput(&model.Signal{Entry: 100, Stop: 98, Target: 104})
	in.Features = &model.FeatureSnapshot{SpreadTicks: &spread}
	r := g.Evaluate(context.Background(), in)
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonSpreadTooWide, r.Reason)
}

func TestConstraintPoorRiskReward(t *testing.T) {
	g := NewConstraintGuard(testConstraintConfig(), 0.1)
	// RR = 2/2 = 1 < 1.5
	r := g.Evaluate(context.Background(), constraintInput(&model.Signal{Entry: 100, Stop: 98, Target: 102}))
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonPoorRiskReward, r.Reason)
}

func TestConstraintNoTargetSkipsRiskReward(t *testing.T) {
	g := NewConstraintGuard(testConstraintConfig(), 0.1)
	r := g.Evaluate(context.Background(), constraintInput(&model.Signal{Entry: 100, Stop: 98}))
	assert.True(t, r.Passed)
}

func TestConstraintPass(t *testing.T) {
	g := NewConstraintGuard(testConstraintConfig(), 0.1)
	r := g.Evaluate(context.Background(), constraintInput(&model.Signal{Entry: 100, Stop: 98, Target: 104}))
	assert.True(t, r.Passed)
}

func TestMentalGuardBlocksLevelOne(t *testing.T) {
	mgr := risk.NewMentalManager(conf.MentalConfig{
		Multipliers: []float64{0, 0.25, 0.5, 0.75, 1.0}, CooldownMinutes: 60,
	})
	g := NewMentalGuard(mgr)

	in := &Input{Mental: &model.MentalState{Level: model.MentalCritical}, Now: time.Now()}
	r := g.Evaluate(context.Background(), in)
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonMentalState, r.Reason)

	in.Mental.Level = model.MentalFair
	assert.True(t, g.Evaluate(context.Background(), in).Passed)
}

func TestNewsGuardNilCalendarPasses(t *testing.T) {
	g := NewNewsGuard(nil, conf.NewsConfig{BlackoutBefore: 30, BlackoutAfter: 15, MinImpact: "medium"})
	in := &Input{Symbol: "BTC/USDT", Now: time.Now()}
	assert.True(t, g.Evaluate(context.Background(), in).Passed)
}

func TestNewsGuardBlackout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	event := time.Now().UTC().Add(10 * time.Minute)
	content := "events:\n  - symbol: \"BTC/USDT\"\n    time: " + event.Format(time.RFC3339) + "\n    impact: high\n    title: CPI\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cal, err := calendar.Load(path, time.Minute)
	require.NoError(t, err)

	g := NewNewsGuard(cal, conf.NewsConfig{BlackoutBefore: 30, BlackoutAfter: 15, MinImpact: "medium"})
	// 信号还没产生 守卫只靠品种名工作
	in := &Input{Symbol: "BTC/USDT", Now: time.Now()}
	r := g.Evaluate(context.Background(), in)
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonNewsBlackout, r.Reason)

	// 其他品种不受影响
	in.Symbol = "ETH/USDT"
	assert.True(t, g.Evaluate(context.Background(), in).Passed)
}

type stubQuoteSource struct {
	quote *model.Quote
	err   error
}

func (s *stubQuoteSource) Quote(_ context.Context, _ string) (*model.Quote, error) {
	return s.quote, s.err
}

func testExecConfig() conf.ExecutionConfig {
	return conf.ExecutionConfig{MaxSpreadTicks: 2, MaxSlippageTicks: 3}
}

func goodQuote(now time.Time) *model.Quote {
	return &model.Quote{
		Symbol: "BTC/USDT", Bid: 29500.0, Ask: 29500.1,
		BidSize: 50, AskSize: 50, Timestamp: now,
	}
}

func execInput(now time.Time) *Input {
	return &Input{
		Signal: &model.Signal{Symbol: "BTC/USDT", Direction: model.Long, Contracts: 2},
		Now:    now,
	}
}

func TestExecutionGuardPass(t *testing.T) {
	now := time.Now()
	g := NewExecutionGuard(&stubQuoteSource{quote: goodQuote(now)}, testExecConfig(), 0.1)
	assert.True(t, g.Evaluate(context.Background(), execInput(now)).Passed)
}

func TestExecutionGuardNoSource(t *testing.T) {
	g := NewExecutionGuard(nil, testExecConfig(), 0.1)
	r := g.Evaluate(context.Background(), execInput(time.Now()))
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonExecUnavailable, r.Reason)
}

func TestExecutionGuardQuoteError(t *testing.T) {
	g := NewExecutionGuard(&stubQuoteSource{err: errors.New("dial timeout")}, testExecConfig(), 0.1)
	r := g.Evaluate(context.Background(), execInput(time.Now()))
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonExecUnavailable, r.Reason)
}

func TestExecutionGuardStaleQuote(t *testing.T) {
	now := time.Now()
	q := goodQuote(now.Add(-time.Minute))
	g := NewExecutionGuard(&stubQuoteSource{quote: q}, testExecConfig(), 0.1)
	r := g.Evaluate(context.Background(), execInput(now))
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonExecUnavailable, r.Reason)
}

func TestExecutionGuardWideSpread(t *testing.T) {
	now := time.Now()
	q := goodQuote(now)
	q.Ask = q.Bid + 0.5 // 5 ticks
	g := NewExecutionGuard(&stubQuoteSource{quote: q}, testExecConfig(), 0.1)
	r := g.Evaluate(context.Background(), execInput(now))
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonExecSpread, r.Reason)
}

func TestExecutionGuardSlippage(t *testing.T) {
	now := time.Now()
	g := NewExecutionGuard(&stubQuoteSource{quote: goodQuote(now)}, testExecConfig(), 0.1)
	slip := 4.5
	in := execInput(now)
	in.Features = &model.FeatureSnapshot{EntrySlipP95: &slip}
	r := g.Evaluate(context.Background(), in)
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonExecSlippage, r.Reason)
}

func TestExecutionGuardThinBook(t *testing.T) {
	now := time.Now()
	q := goodQuote(now)
	q.AskSize = 1 // 买方向吃卖一 深度不够2张
	g := NewExecutionGuard(&stubQuoteSource{quote: q}, testExecConfig(), 0.1)
	r := g.Evaluate(context.Background(), execInput(now))
	require.False(t, r.Passed)
	assert.Equal(t, model.ReasonExecDepth, r.Reason)

	// 空方向看买一 深度足够
	in := execInput(now)
	in.Signal.Direction = model.Short
	assert.True(t, g.Evaluate(context.Background(), in).Passed)
}
