package strategy

import (
	"quantgate/internal/model"
)

// 策略接口定义
// 策略只负责"有没有交易机会"，不碰仓位和风控。
// 没有机会返回(nil, nil)，这不是错误。

type Strategy interface {
	Name() string
	// 策略适配的市场状态 不匹配时调度器直接跳过
	RequiredRegime() model.Regime
	// 从特征快照生成候选信号 positions为当前持仓快照（只读）
	GenerateSignal(f *model.FeatureSnapshot, regime model.Regime, positions []model.OpenPosition) (*model.Signal, error)
}
