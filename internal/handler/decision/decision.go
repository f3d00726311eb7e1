package decision

import (
	"errors"
	"time"

	"quantgate/internal/consts"
	"quantgate/internal/service"
	"quantgate/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// 决策流水查询接口 复盘和外部监控读这里
// 需要配置数据库，没配时统一返回journal disabled

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

// Recent GET /api/decisions/recent 最近N条决策
func (h *Handler) Recent(c *gin.Context) {
	limit := cast.ToInt(c.Query("limit"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := h.engine.RecentDecisions(c.Request.Context(), tenantParam(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.JSON(c, nil, rows)
}

// History GET /api/decisions/history 按时间范围查某品种的决策
func (h *Handler) History(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		response.BadRequests(c, "symbol required")
		return
	}

	now := time.Now()
	start, end := now.Add(-24*time.Hour), now
	if s := c.Query("start"); s != "" {
		t, err := time.ParseInLocation(consts.TimeLayout, s, now.Location())
		if err != nil {
			response.BadRequests(c, "invalid start: "+err.Error())
			return
		}
		start = t
	}
	if s := c.Query("end"); s != "" {
		t, err := time.ParseInLocation(consts.TimeLayout, s, now.Location())
		if err != nil {
			response.BadRequests(c, "invalid end: "+err.Error())
			return
		}
		end = t
	}

	rows, err := h.engine.DecisionHistory(c.Request.Context(), tenantParam(c), symbol, start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.JSON(c, nil, rows)
}

// Stats GET /api/decisions/stats 最近时段的放行率
func (h *Handler) Stats(c *gin.Context) {
	hours := cast.ToInt(c.Query("hours"))
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	rate, err := h.engine.ApprovalRate(c.Request.Context(), tenantParam(c), since)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.JSON(c, nil, gin.H{
		"tenant":        tenantParam(c),
		"since":         since,
		"approval_rate": rate,
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrUnknownTenant) || errors.Is(err, service.ErrJournalDisabled) {
		response.BadRequests(c, err.Error())
		return
	}
	response.InternalErr(c, err)
}
