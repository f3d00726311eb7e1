package guard

import (
	"context"
	"fmt"
	"time"

	"quantgate/conf"
	"quantgate/internal/calendar"
	"quantgate/internal/model"
)

// 新闻守卫 重大事件窗口内禁止新开仓
type NewsGuard struct {
	cal *calendar.Calendar
	cfg conf.NewsConfig
}

func NewNewsGuard(cal *calendar.Calendar, cfg conf.NewsConfig) *NewsGuard {
	return &NewsGuard{cal: cal, cfg: cfg}
}

func (g *NewsGuard) Name() string { return "news" }

func (g *NewsGuard) Evaluate(_ context.Context, in *Input) model.GateResult {
	// 日历不可用时不拦截 特征里的MinutesToNews同样是nil
	if g.cal == nil {
		return model.GateResult{Name: g.Name(), Passed: true}
	}

	before := time.Duration(g.cfg.BlackoutBefore) * time.Minute
	after := time.Duration(g.cfg.BlackoutAfter) * time.Minute
	hit, ev := g.cal.InWindow(in.Symbol, calendar.ParseImpact(g.cfg.MinImpact), before, after, in.Now)
	if hit {
		return model.GateResult{
			Name:   g.Name(),
			Passed: false,
			Reason: model.ReasonNewsBlackout,
			Detail: fmt.Sprintf("news blackout: %s @ %s", ev.Title, ev.Time.Format("15:04")),
		}
	}
	return model.GateResult{Name: g.Name(), Passed: true}
}
