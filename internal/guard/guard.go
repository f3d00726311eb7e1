package guard

import (
	"context"
	"time"

	"quantgate/internal/model"
)

// 守卫链
// 信号无关的守卫（新闻 → 心理）在策略跑之前评估，
// 信号相关的守卫（合规约束）拿到具体信号后评估。
// 组内顺序固定，第一个失败就短路。
// 失败是正常业务结果（GateResult），不是error；error只留给基础设施故障。

// 守卫的评估输入 决策一次构造一份，守卫只读
// Signal在策略产出之前为nil，信号无关的守卫不能碰它
type Input struct {
	TenantID string
	Symbol   string
	Signal   *model.Signal
	Features *model.FeatureSnapshot
	Risk     *model.RiskState
	Mental   *model.MentalState
	Now      time.Time
}

type Guard interface {
	Name() string
	Evaluate(ctx context.Context, in *Input) model.GateResult
}

type Chain struct {
	guards []Guard
}

func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

// Evaluate 依次评估 返回所有已执行守卫的结果和第一个失败项
// 全部通过时failed为nil
func (c *Chain) Evaluate(ctx context.Context, in *Input) (results []model.GateResult, failed *model.GateResult) {
	for _, g := range c.guards {
		r := g.Evaluate(ctx, in)
		results = append(results, r)
		if !r.Passed {
			return results, &results[len(results)-1]
		}
	}
	return results, nil
}
