package service

import (
	"context"
	"testing"
	"time"

	"quantgate/conf"
	"quantgate/internal/feature"
	"quantgate/internal/fusion"
	"quantgate/internal/guard"
	"quantgate/internal/model"
	"quantgate/internal/pipeline"
	"quantgate/internal/risk"
	"quantgate/internal/sizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildEngine(tenants ...string) *Engine {
	mental := risk.NewMentalManager(conf.MentalConfig{
		Multipliers: []float64{0, 0.25, 0.5, 0.75, 1.0}, CooldownMinutes: 60,
		DowngradeStreak: 2, DowngradeDailyR: -1.5,
	})
	newsCfg := conf.NewsConfig{BlackoutBefore: 30, BlackoutAfter: 15, MinImpact: "medium"}

	newOrch := func(tenant string) *pipeline.Orchestrator {
		return pipeline.NewOrchestrator(tenant, pipeline.Deps{
			Extractor: feature.NewExtractor(feature.DefaultConfig()),
			Fusion: fusion.New(fusion.Config{
				Enabled: false, Timeframes: []time.Duration{30 * time.Minute}, MaxBars: 64, MinBars: 6,
			}),
			Governor: risk.NewGovernor(conf.RiskConfig{
				RiskPerTrade: 100, DailyStopR: -2, WeeklyStopR: -5, MaxLossDays: 3,
				ScaleCeiling: 1.5, DailyLossUSD: 1000, ConsistencyPct: 0.4,
			}),
			Mental: mental,
			Sizer:  sizer.New(1.0),
			PreGuards: guard.NewChain(
				guard.NewNewsGuard(nil, newsCfg),
				guard.NewMentalGuard(mental),
			),
			SigGuards: guard.NewChain(
				guard.NewConstraintGuard(conf.ConstraintConfig{MinStopTicks: 10, MaxSpreadTicks: 2, MinRiskReward: 1.5}, 0.1),
			),
			ExecGuard: guard.NewExecutionGuard(nil, conf.ExecutionConfig{}, 0.1),
			Slips:     risk.NewSlipTracker(),
			NewsCfg:   newsCfg,
		})
	}

	return NewEngine(Options{
		Tenants: tenants,
		NewOrch: newOrch,
		Deduper: risk.NewDeduper(nil),
	})
}

func testEngine(t *testing.T, tenants ...string) *Engine {
	t.Helper()
	e := buildEngine(tenants...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		e.Wait()
	})
	e.Start(ctx)
	return e
}

func TestSubmitSignalUnknownTenant(t *testing.T) {
	e := testEngine(t, "default")

	_, err := e.SubmitSignal(context.Background(), model.ExternalSignal{
		Tenant: "ghost", Symbol: "BTC/USDT", Direction: "long",
		Entry: 29500, Stop: 29450, Strategy: "tv",
	})
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

// 没有K线数据时外部信号被拒绝 但引擎仍然给出唯一决策
func TestSubmitSignalReturnsDecision(t *testing.T) {
	e := testEngine(t, "default")

	dec, err := e.SubmitSignal(context.Background(), model.ExternalSignal{
		Tenant: "default", Symbol: "BTC/USDT", Direction: "long",
		Entry: 29500, Stop: 29450, Target: 29950, Strategy: "tv",
	})
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.False(t, dec.Approved)
	assert.Equal(t, model.ReasonInsufficientBar, dec.RejectCode)
}

// 重复的(order,execution)只入账一次
func TestApplyFillIdempotent(t *testing.T) {
	e := testEngine(t, "default")
	ctx := context.Background()
	fill := model.Fill{
		OrderID: "o1", ExecutionID: "e1", TenantID: "default",
		Symbol: "BTC/USDT", RealizedR: -1, ClosedAt: time.Now(),
	}

	require.NoError(t, e.ApplyFill(ctx, fill))
	require.NoError(t, e.ApplyFill(ctx, fill))
	require.NoError(t, e.ApplyFill(ctx, fill))

	rs, err := e.RiskSnapshot(ctx, "default")
	require.NoError(t, err)
	assert.InDelta(t, -1, rs.DailyR, 1e-9)
	assert.Len(t, rs.RecentLosses, 1)
}

// 队列满时成交回报必须报错而不是静默丢弃
// 去重标记不能提前打上 否则重试会被当成重复回报永久丢账
func TestApplyFillQueueFullRetryable(t *testing.T) {
	e := buildEngine("default")
	ctx := context.Background()

	// 引擎未启动 把队列塞满
	for i := 0; i < taskQueueSize; i++ {
		require.True(t, e.enqueue("default", func() {}))
	}

	fill := model.Fill{
		OrderID: "o1", ExecutionID: "e1", TenantID: "default",
		Symbol: "BTC/USDT", RealizedR: -1, ClosedAt: time.Now(),
	}
	require.ErrorIs(t, e.ApplyFill(ctx, fill), ErrQueueFull)

	// 启动后重试同一笔回报 必须正常入账
	runCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		e.Wait()
	})
	e.Start(runCtx)

	require.NoError(t, e.ApplyFill(ctx, fill))
	rs, err := e.RiskSnapshot(ctx, "default")
	require.NoError(t, err)
	assert.InDelta(t, -1, rs.DailyR, 1e-9)
	assert.Len(t, rs.RecentLosses, 1)
}

func TestApplyFillUnknownTenant(t *testing.T) {
	e := testEngine(t, "default")
	err := e.ApplyFill(context.Background(), model.Fill{TenantID: "ghost", OrderID: "o1", ExecutionID: "e1"})
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

// 租户之间状态完全隔离
func TestTenantIsolation(t *testing.T) {
	e := testEngine(t, "alpha", "beta")
	ctx := context.Background()

	require.NoError(t, e.ApplyFill(ctx, model.Fill{
		OrderID: "o1", ExecutionID: "e1", TenantID: "alpha", RealizedR: -2.5, ClosedAt: time.Now(),
	}))

	aState, _, err := e.StateOf(ctx, "alpha", nil)
	require.NoError(t, err)
	assert.Equal(t, "PAUSED", aState)

	bState, _, err := e.StateOf(ctx, "beta", nil)
	require.NoError(t, err)
	assert.Equal(t, "READY", bState)

	rs, err := e.RiskSnapshot(ctx, "beta")
	require.NoError(t, err)
	assert.Zero(t, rs.DailyR)
}

func TestOverrideMentalAndSnapshot(t *testing.T) {
	e := testEngine(t, "default")
	ctx := context.Background()

	require.NoError(t, e.OverrideMental(ctx, "default", model.MentalPoor, time.Hour))

	ms, err := e.MentalSnapshot(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, model.MentalPoor, ms.Level)

	assert.ErrorIs(t, e.OverrideMental(ctx, "ghost", model.MentalPoor, time.Hour), ErrUnknownTenant)
}

// 没配数据库时历史查询给出明确错误
func TestDecisionQueriesJournalDisabled(t *testing.T) {
	e := testEngine(t, "default")
	ctx := context.Background()

	_, err := e.RecentDecisions(ctx, "default", 10)
	assert.ErrorIs(t, err, ErrJournalDisabled)

	_, err = e.DecisionHistory(ctx, "default", "BTC/USDT", time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrJournalDisabled)

	_, err = e.ApprovalRate(ctx, "ghost", time.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestResume(t *testing.T) {
	e := testEngine(t, "default")
	ctx := context.Background()

	require.NoError(t, e.ApplyFill(ctx, model.Fill{
		OrderID: "o1", ExecutionID: "e1", TenantID: "default", RealizedR: -2.5, ClosedAt: time.Now(),
	}))
	st, _, err := e.StateOf(ctx, "default", nil)
	require.NoError(t, err)
	require.Equal(t, "PAUSED", st)

	require.NoError(t, e.Resume(ctx, "default"))
	st, _, err = e.StateOf(ctx, "default", nil)
	require.NoError(t, err)
	assert.Equal(t, "READY", st)
}
