package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quantgate/conf"
	"quantgate/internal/calendar"
	"quantgate/internal/feature"
	"quantgate/internal/fusion"
	"quantgate/internal/guard"
	"quantgate/internal/model"
	"quantgate/internal/risk"
	"quantgate/internal/sizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuotes struct {
	quote *model.Quote
}

func (s *stubQuotes) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	q := *s.quote
	q.Symbol = symbol
	q.Timestamp = time.Now()
	return &q, nil
}

func testDeps() Deps {
	riskCfg := conf.RiskConfig{
		RiskPerTrade: 100, DailyStopR: -2, WeeklyStopR: -5, MaxLossDays: 3,
		ScaleCeiling: 1.5, DailyLossUSD: 1000, ConsistencyPct: 0.4,
	}
	mentalCfg := conf.MentalConfig{
		Multipliers: []float64{0, 0.25, 0.5, 0.75, 1.0}, CooldownMinutes: 60,
		DowngradeStreak: 2, DowngradeDailyR: -1.5,
	}
	mental := risk.NewMentalManager(mentalCfg)
	constraintCfg := conf.ConstraintConfig{MinStopTicks: 10, MaxSpreadTicks: 2, MinRiskReward: 1.5}
	newsCfg := conf.NewsConfig{BlackoutBefore: 30, BlackoutAfter: 15, MinImpact: "medium"}
	execCfg := conf.ExecutionConfig{MaxSpreadTicks: 2, MaxSlippageTicks: 3}

	src := &stubQuotes{quote: &model.Quote{Bid: 29500.0, Ask: 29500.1, BidSize: 50, AskSize: 50}}

	return Deps{
		Extractor: feature.NewExtractor(feature.Config{
			MinBars: 30, ADXPeriod: 14, ATRPeriod: 14, SlopeWindow: 10, ORBars: 6, TickSize: 0.1,
		}),
		// 关掉HTF拦截，让放行路径确定
		Fusion: fusion.New(fusion.Config{
			Enabled: false, Timeframes: []time.Duration{30 * time.Minute}, MaxBars: 64, MinBars: 6,
		}),
		Governor: risk.NewGovernor(riskCfg),
		Mental:   mental,
		Sizer:    sizer.New(1.0),
		PreGuards: guard.NewChain(
			guard.NewNewsGuard(nil, newsCfg),
			guard.NewMentalGuard(mental),
		),
		SigGuards: guard.NewChain(
			guard.NewConstraintGuard(constraintCfg, 0.1),
		),
		ExecGuard: guard.NewExecutionGuard(src, execCfg, 0.1),
		Slips:     risk.NewSlipTracker(),
		NewsCfg:   newsCfg,
	}
}

// 合成一段持续上涨的5分钟K线 分类结果是趋势市
func trendingBars(n int, start time.Time) []model.Kline {
	bars := make([]model.Kline, n)
	for i := range bars {
		base := 29000 + float64(i)*10
		bars[i] = model.Kline{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      base,
			High:      base + 8,
			Low:       base - 5,
			Close:     base + 6,
			Vol:       100,
		}
	}
	return bars
}

func feedBars(t *testing.T, o *Orchestrator, bars []model.Kline) *model.Decision {
	t.Helper()
	var last *model.Decision
	for _, b := range bars {
		dec, err := o.OnBar(context.Background(), "BTC/USDT", b)
		require.NoError(t, err)
		require.NotNil(t, dec) // 每次调用有且只有一个决策
		last = dec
	}
	return last
}

func TestOnBarInsufficientData(t *testing.T) {
	o := NewOrchestrator("default", testDeps())
	assert.Equal(t, StateReady, o.State())

	dec, err := o.OnBar(context.Background(), "BTC/USDT", model.Kline{
		Timestamp: time.Now(), Close: 29000,
	})
	require.NoError(t, err)
	assert.False(t, dec.Approved)
	assert.Equal(t, model.ReasonInsufficientBar, dec.RejectCode)
	assert.Equal(t, StateReady, o.State())
}

// 没有注册策略时趋势市也产不出setup
func TestOnBarNoSetup(t *testing.T) {
	o := NewOrchestrator("default", testDeps())
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	last := feedBars(t, o, trendingBars(40, start))
	assert.False(t, last.Approved)
	assert.Equal(t, model.ReasonNoSetup, last.RejectCode)

	rg, ok := o.RegimeOf("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, model.RegimeTrend, rg)
}

// 黑名单窗口比市场分类的硬规则宽时，没有setup的bar也必须报新闻拦截
// 守卫在策略之前评估，拒绝原因是news_blackout而不是no_setup
func TestNewsBlackoutBeforeStrategy(t *testing.T) {
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	lastBar := start.Add(39 * 5 * time.Minute)

	// 事件在最后一根bar的60分钟后：超出分类器的30分钟硬规则，落在120分钟黑名单窗口内
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	yaml := "events:\n  - symbol: \"*\"\n    time: " +
		lastBar.Add(time.Hour).Format(time.RFC3339) + "\n    impact: high\n    title: FOMC\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	cal, err := calendar.Load(path, time.Minute)
	require.NoError(t, err)

	newsCfg := conf.NewsConfig{BlackoutBefore: 120, BlackoutAfter: 15, MinImpact: "medium"}
	d := testDeps()
	d.Calendar = cal
	d.NewsCfg = newsCfg
	d.PreGuards = guard.NewChain(
		guard.NewNewsGuard(cal, newsCfg),
		guard.NewMentalGuard(risk.NewMentalManager(conf.MentalConfig{
			Multipliers: []float64{0, 0.25, 0.5, 0.75, 1.0}, CooldownMinutes: 60,
			DowngradeStreak: 2, DowngradeDailyR: -1.5,
		})),
	)

	o := NewOrchestrator("default", d)
	last := feedBars(t, o, trendingBars(40, start))
	assert.False(t, last.Approved)
	assert.Equal(t, model.ReasonNewsBlackout, last.RejectCode)
	assert.Equal(t, StateReady, o.State())
}

func TestExternalSignalApproved(t *testing.T) {
	o := NewOrchestrator("default", testDeps())
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	feedBars(t, o, trendingBars(40, start))

	dec, err := o.OnExternalSignal(context.Background(), model.ExternalSignal{
		Tenant: "default", Symbol: "BTC/USDT", Direction: "long",
		Entry: 29500, Stop: 29450, Target: 29950,
		Confidence: 0.6, Strategy: "tv-orb-5m",
	})
	require.NoError(t, err)
	require.True(t, dec.Approved, "reject: %s %s", dec.RejectCode, dec.RejectDetail)

	// 守卫执行顺序固定 信号无关的在前
	var names []string
	for _, g := range dec.Gates {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"news", "mental", "htf", "constraint", "risk", "sizer", "execution"}, names)

	require.NotNil(t, dec.Signal)
	assert.Greater(t, dec.Signal.Contracts, 0)
	require.NotNil(t, dec.Sizing)
	assert.InDelta(t, 100, dec.Sizing.RiskBudget, 1e-9)
	assert.Equal(t, StateReady, o.State())
}

func TestExternalSignalExpired(t *testing.T) {
	o := NewOrchestrator("default", testDeps())

	dec, err := o.OnExternalSignal(context.Background(), model.ExternalSignal{
		Symbol: "BTC/USDT", Direction: "long",
		Entry: 29500, Stop: 29450, Strategy: "tv",
		Timestamp: time.Now().Add(-10 * time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, dec.Approved)
	assert.Equal(t, model.ReasonSignalExpired, dec.RejectCode)
}

func TestExternalSignalRejectedByConstraint(t *testing.T) {
	o := NewOrchestrator("default", testDeps())
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	feedBars(t, o, trendingBars(40, start))

	// 止损距离0.5 < 10个tick
	dec, err := o.OnExternalSignal(context.Background(), model.ExternalSignal{
		Symbol: "BTC/USDT", Direction: "long",
		Entry: 29500, Stop: 29499.5, Target: 29950, Strategy: "tv",
	})
	require.NoError(t, err)
	assert.False(t, dec.Approved)
	assert.Equal(t, model.ReasonStopTooTight, dec.RejectCode)
}

// 成交回报里的滑点进入滚动统计，p95超限后执行守卫开始拒绝
func TestSlippageHistoryBlocksExecution(t *testing.T) {
	o := NewOrchestrator("default", testDeps())
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	feedBars(t, o, trendingBars(40, start))

	// 上限3个tick 一笔5个tick的回报就足以把p95顶过去
	o.ApplyFill(model.Fill{
		OrderID: "o1", ExecutionID: "e1", Symbol: "BTC/USDT",
		RealizedR: -0.1, EntrySlipTicks: 5, ExitSlipTicks: 1,
		ClosedAt: start.Add(3 * time.Hour),
	})

	dec, err := o.OnExternalSignal(context.Background(), model.ExternalSignal{
		Symbol: "BTC/USDT", Direction: "long",
		Entry: 29500, Stop: 29450, Target: 29950, Strategy: "tv",
	})
	require.NoError(t, err)
	assert.False(t, dec.Approved)
	assert.Equal(t, model.ReasonExecSlippage, dec.RejectCode)
}

// 重启恢复的风控账本立即生效 当日已触线的租户恢复后仍然是暂停
func TestRestoreRiskState(t *testing.T) {
	o := NewOrchestrator("default", testDeps())

	saved := model.NewRiskState("default")
	saved.DailyR = -2.5
	o.RestoreRiskState(saved)

	rs := o.RiskSnapshot()
	assert.Equal(t, "default", rs.TenantID)
	assert.InDelta(t, -2.5, rs.DailyR, 1e-9)

	dec, err := o.OnBar(context.Background(), "BTC/USDT", model.Kline{
		Timestamp: time.Now(), Close: 29000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonDailyLossLimit, dec.RejectCode)
	assert.Equal(t, StatePaused, o.State())

	// nil快照是空操作
	o.RestoreRiskState(nil)
	assert.InDelta(t, -2.5, o.RiskSnapshot().DailyR, 1e-9)
}

func TestTripwirePausesPipeline(t *testing.T) {
	o := NewOrchestrator("default", testDeps())
	closedAt := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)

	o.ApplyFill(model.Fill{OrderID: "o1", ExecutionID: "e1", RealizedR: -2.5, ClosedAt: closedAt})
	assert.Equal(t, StatePaused, o.State())

	// 当日剩余时间全部拒绝
	dec, err := o.OnBar(context.Background(), "BTC/USDT", model.Kline{
		Timestamp: closedAt.Add(time.Hour), Close: 29000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonPaused, dec.RejectCode)
	assert.Equal(t, StatePaused, o.State())

	// 过了日边界自动恢复（日内R已由边界任务清零）
	o.ResetDay()
	dec, err = o.OnBar(context.Background(), "BTC/USDT", model.Kline{
		Timestamp: closedAt.Add(24 * time.Hour), Close: 29000,
	})
	require.NoError(t, err)
	assert.NotEqual(t, model.ReasonPaused, dec.RejectCode)
	assert.Equal(t, StateReady, o.State())
}

// 连续亏损天数触发的暂停没有自动恢复时间
func TestLosingStreakNeedsManualResume(t *testing.T) {
	o := NewOrchestrator("default", testDeps())
	now := time.Now()

	for i := 0; i < 3; i++ {
		o.riskState.DailyR = -0.5
		o.ResetDay()
	}

	dec, err := o.OnBar(context.Background(), "BTC/USDT", model.Kline{Timestamp: now, Close: 29000})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonLosingStreak, dec.RejectCode)
	assert.Equal(t, StatePaused, o.State())

	// 时间流逝不解除 必须人工处理
	dec, err = o.OnBar(context.Background(), "BTC/USDT", model.Kline{
		Timestamp: now.Add(72 * time.Hour), Close: 29000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonPaused, dec.RejectCode)

	o.riskState.ConsecutiveLossDays = 0
	o.Resume()
	assert.Equal(t, StateReady, o.State())
}

// 组件panic收敛为ERROR状态 仍然产出一条决策
func TestPanicEntersErrorState(t *testing.T) {
	d := testDeps()
	d.Extractor = nil // 任何解引用都会panic
	o := NewOrchestrator("default", d)

	dec, err := o.OnBar(context.Background(), "BTC/USDT", model.Kline{Timestamp: time.Now(), Close: 29000})
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, model.ReasonFault, dec.RejectCode)
	assert.Equal(t, StateError, o.State())

	// ERROR状态下后续调用直接拒绝
	dec, err = o.OnBar(context.Background(), "BTC/USDT", model.Kline{Timestamp: time.Now(), Close: 29000})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonFault, dec.RejectCode)

	// 只有人工恢复这一条路
	o.Resume()
	assert.Equal(t, StateReady, o.State())
}

func TestMentalOverrideBlocksTrading(t *testing.T) {
	o := NewOrchestrator("default", testDeps())
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	feedBars(t, o, trendingBars(40, start))

	o.OverrideMental(model.MentalCritical, 4*time.Hour)

	dec, err := o.OnExternalSignal(context.Background(), model.ExternalSignal{
		Symbol: "BTC/USDT", Direction: "long",
		Entry: 29500, Stop: 29450, Target: 29950, Strategy: "tv",
	})
	require.NoError(t, err)
	assert.False(t, dec.Approved)
	assert.Equal(t, model.ReasonMentalState, dec.RejectCode)
}

func TestStateTransitionTable(t *testing.T) {
	assert.True(t, canTransition(StateReady, StateAnalyzing))
	assert.True(t, canTransition(StateAnalyzing, StateSignalGenerated))
	assert.True(t, canTransition(StateSignalGenerated, StateTrading))
	assert.True(t, canTransition(StateTrading, StateReady))
	assert.True(t, canTransition(StateAnalyzing, StatePaused))
	assert.False(t, canTransition(StateReady, StateTrading))
	assert.False(t, canTransition(StateError, StateAnalyzing))
}
