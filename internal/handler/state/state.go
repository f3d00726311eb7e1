package state

import (
	"errors"
	"time"

	"quantgate/conf"
	"quantgate/internal/model"
	"quantgate/internal/service"
	"quantgate/pkg/response"

	"github.com/gin-gonic/gin"
)

// 状态查询与人工干预接口
// 风控/心理/管道状态都是只读快照；心理等级覆盖和人工恢复是仅有的两个写入口

type Handler struct {
	engine *service.Engine
}

func NewHandler(engine *service.Engine) *Handler {
	return &Handler{engine: engine}
}

func tenantParam(c *gin.Context) string {
	t := c.Query("tenant")
	if t == "" {
		t = "default"
	}
	return t
}

// Risk GET /api/state/risk
func (h *Handler) Risk(c *gin.Context) {
	rs, err := h.engine.RiskSnapshot(c.Request.Context(), tenantParam(c))
	if err != nil {
		response.BadRequests(c, err.Error())
		return
	}
	response.JSON(c, nil, gin.H{
		"tenant":                rs.TenantID,
		"daily_r":               rs.DailyR,
		"weekly_r":              rs.WeeklyR,
		"consecutive_loss_days": rs.ConsecutiveLossDays,
		"scaling_mult":          rs.ScalingMult,
		"profit_factor":         rs.ProfitFactor(),
		"updated_at":            rs.UpdatedAt,
	})
}

// Regime GET /api/state/regime
func (h *Handler) Regime(c *gin.Context) {
	tenant := tenantParam(c)
	st, regimes, err := h.engine.StateOf(c.Request.Context(), tenant, conf.AppConfig.Pipeline.Symbols)
	if err != nil {
		response.BadRequests(c, err.Error())
		return
	}
	response.JSON(c, nil, gin.H{
		"tenant":  tenant,
		"state":   st,
		"regimes": regimes,
	})
}

// Mental GET /api/state/mental
func (h *Handler) Mental(c *gin.Context) {
	ms, err := h.engine.MentalSnapshot(c.Request.Context(), tenantParam(c))
	if err != nil {
		response.BadRequests(c, err.Error())
		return
	}
	response.JSON(c, nil, gin.H{
		"level":          int(ms.Level),
		"loss_streak":    ms.LossStreak,
		"cooldown_until": ms.CooldownUntil,
		"in_cooldown":    ms.InCooldown(time.Now()),
		"updated_at":     ms.UpdatedAt,
	})
}

type overrideReq struct {
	Tenant         string `json:"tenant"`
	Level          int    `json:"level" binding:"required,gte=1,lte=5"`
	EffectiveHours int    `json:"effective_hours" binding:"gte=0"`
}

// OverrideMental POST /api/state/mental
func (h *Handler) OverrideMental(c *gin.Context) {
	var req overrideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequests(c, err.Error())
		return
	}
	if req.Tenant == "" {
		req.Tenant = "default"
	}
	if req.EffectiveHours == 0 {
		req.EffectiveHours = 4
	}
	err := h.engine.OverrideMental(c.Request.Context(), req.Tenant,
		model.MentalLevel(req.Level), time.Duration(req.EffectiveHours)*time.Hour)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTenant) {
			response.BadRequests(c, err.Error())
			return
		}
		response.InternalErr(c, err)
		return
	}
	response.JSON(c, nil, gin.H{"level": req.Level})
}

type resumeReq struct {
	Tenant string `json:"tenant"`
}

// Resume POST /api/state/resume 人工恢复暂停/错误中的管道
func (h *Handler) Resume(c *gin.Context) {
	var req resumeReq
	_ = c.ShouldBindJSON(&req)
	if req.Tenant == "" {
		req.Tenant = "default"
	}
	if err := h.engine.Resume(c.Request.Context(), req.Tenant); err != nil {
		response.BadRequests(c, err.Error())
		return
	}
	response.JSON(c, nil, gin.H{"resumed": req.Tenant})
}
