package guard

import (
	"context"
	"fmt"

	"quantgate/conf"
	"quantgate/internal/model"
	"quantgate/pkg/logger"
)

// 执行质量守卫 下单前的最后一道闸
// 拉实时报价查点差/滑点/盘口深度，报价拉不到或过期按"执行环境不可用"拒绝，
// 绝不放行一个没验过执行质量的信号。

// 实时报价来源 由exchange包提供实现
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
}

type ExecutionGuard struct {
	src      QuoteSource
	cfg      conf.ExecutionConfig
	tickSize float64
}

func NewExecutionGuard(src QuoteSource, cfg conf.ExecutionConfig, tickSize float64) *ExecutionGuard {
	return &ExecutionGuard{src: src, cfg: cfg, tickSize: tickSize}
}

func (g *ExecutionGuard) Name() string { return "execution" }

func (g *ExecutionGuard) Evaluate(ctx context.Context, in *Input) model.GateResult {
	if g.src == nil {
		return g.unavailable("quote source not configured")
	}

	qctx, cancel := context.WithTimeout(ctx, g.cfg.QuoteTimeout())
	defer cancel()

	quote, err := g.src.Quote(qctx, in.Signal.Symbol)
	if err != nil {
		logger.Warnf("[guard] %s 拉取报价失败: %v", in.Signal.Symbol, err)
		return g.unavailable(err.Error())
	}
	if quote.Stale(g.cfg.QuoteMaxAge(), in.Now) {
		return g.unavailable(fmt.Sprintf("quote stale: %s", quote.Timestamp.Format("15:04:05.000")))
	}

	if spread := quote.SpreadTicks(g.tickSize); spread > g.cfg.MaxSpreadTicks {
		return model.GateResult{
			Name:   g.Name(),
			Passed: false,
			Reason: model.ReasonExecSpread,
			Detail: fmt.Sprintf("live spread %.1f ticks > maximum %.1f", spread, g.cfg.MaxSpreadTicks),
		}
	}

	// p95滑点来自执行边界的历史回报，没有样本时跳过
	if in.Features != nil && in.Features.EntrySlipP95 != nil {
		if slip := *in.Features.EntrySlipP95; slip > g.cfg.MaxSlippageTicks {
			return model.GateResult{
				Name:   g.Name(),
				Passed: false,
				Reason: model.ReasonExecSlippage,
				Detail: fmt.Sprintf("entry slippage p95 %.1f ticks > maximum %.1f", slip, g.cfg.MaxSlippageTicks),
			}
		}
	}

	// 盘口深度至少要吃得下本单
	depth := quote.AskSize
	if in.Signal.Direction == model.Short {
		depth = quote.BidSize
	}
	if depth > 0 && depth < float64(in.Signal.Contracts) {
		return model.GateResult{
			Name:   g.Name(),
			Passed: false,
			Reason: model.ReasonExecDepth,
			Detail: fmt.Sprintf("book depth %.0f < order size %d", depth, in.Signal.Contracts),
		}
	}

	return model.GateResult{Name: g.Name(), Passed: true}
}

func (g *ExecutionGuard) unavailable(detail string) model.GateResult {
	return model.GateResult{
		Name:   g.Name(),
		Passed: false,
		Reason: model.ReasonExecUnavailable,
		Detail: detail,
	}
}
