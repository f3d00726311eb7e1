package risk

import (
	"time"

	"quantgate/conf"
	"quantgate/internal/model"
	"quantgate/pkg/logger"
)

// 心理状态调节器
// 等级1~5，等级1禁止交易并启动冷却；2~5按配置表缩放仓位。
// 连续亏损或日内回撤自动降级，冷却期过后没有新亏损自动升级。
// 手动覆盖优先，直到下一笔平仓为止。

type MentalManager struct {
	cfg conf.MentalConfig
}

func NewMentalManager(cfg conf.MentalConfig) *MentalManager {
	return &MentalManager{cfg: cfg}
}

func NewMentalState() *model.MentalState {
	return &model.MentalState{Level: model.MentalExcellent, UpdatedAt: time.Now()}
}

// Multiplier 当前等级对应的仓位乘数
func (m *MentalManager) Multiplier(ms *model.MentalState) float64 {
	idx := int(ms.Level) - 1
	if idx < 0 || idx >= len(m.cfg.Multipliers) {
		return 0
	}
	return m.cfg.Multipliers[idx]
}

// CanTrade 等级1或处于冷却期都不允许交易
func (m *MentalManager) CanTrade(ms *model.MentalState, now time.Time) bool {
	if ms.Level <= model.MentalCritical {
		return false
	}
	return !ms.InCooldown(now)
}

// OnTradeClosed 每笔平仓后推演心理状态
func (m *MentalManager) OnTradeClosed(ms *model.MentalState, rs *model.RiskState, realizedR float64, now time.Time) {
	// 手动覆盖到期自动失效
	if !ms.ManualUntil.IsZero() && now.After(ms.ManualUntil) {
		ms.ManualUntil = time.Time{}
	}

	if realizedR < 0 {
		ms.LossStreak++
		// 连续亏损或日内回撤过深都触发降级
		if ms.LossStreak >= m.cfg.DowngradeStreak || rs.DailyR <= m.cfg.DowngradeDailyR {
			m.downgrade(ms, now)
		}
	} else {
		ms.LossStreak = 0
		// 冷却期结束且没有新亏损才允许恢复
		if !ms.InCooldown(now) {
			m.upgrade(ms)
		}
	}
	ms.UpdatedAt = now
}

// Override 手动设定等级（保持到effective期满或下一笔平仓推演）
func (m *MentalManager) Override(ms *model.MentalState, level model.MentalLevel, effective time.Duration, now time.Time) {
	if level < model.MentalCritical {
		level = model.MentalCritical
	}
	if level > model.MentalExcellent {
		level = model.MentalExcellent
	}
	ms.Level = level
	ms.ManualUntil = now.Add(effective)
	if level == model.MentalCritical {
		ms.CooldownUntil = now.Add(time.Duration(m.cfg.CooldownMinutes) * time.Minute)
	}
	ms.UpdatedAt = now
	logger.Infof("[mental] 手动覆盖等级 -> %d", level)
}

func (m *MentalManager) downgrade(ms *model.MentalState, now time.Time) {
	if ms.Level > model.MentalCritical {
		ms.Level--
	}
	ms.LossStreak = 0
	if ms.Level == model.MentalCritical {
		// 等级1要冷静，冷却期内禁止一切入场
		ms.CooldownUntil = now.Add(time.Duration(m.cfg.CooldownMinutes) * time.Minute)
		logger.Warnf("[mental] 等级降至1，冷却至 %s", ms.CooldownUntil.Format("15:04:05"))
	}
}

func (m *MentalManager) upgrade(ms *model.MentalState) {
	if ms.Level < model.MentalExcellent {
		ms.Level++
	}
}
