package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"quantgate/conf"
	"quantgate/internal/consts"
	"quantgate/internal/model"
	"quantgate/internal/service"
	"quantgate/pkg/logger"
	"quantgate/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// TradingView Webhook 的接收器
// 外部信号走和内置策略完全相同的守卫/风控/定仓管道，同步返回决策结果

type Handler struct {
	engine *service.Engine
}

func NewHandler(engine *service.Engine) *Handler {
	return &Handler{engine: engine}
}

// HandleSignal 接收POST请求并解析为外部信号
func (h *Handler) HandleSignal(c *gin.Context) {
	signature := c.GetHeader(consts.SignatureHeader)
	if signature == "" {
		response.RequireAuthErr(c, errors.New("missing signature"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequests(c, "failed to read body")
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	// 验签
	if !verifySignature(body, signature) {
		response.RequireAuthErr(c, errors.New("signature mismatch"))
		return
	}

	var es model.ExternalSignal
	if err := c.ShouldBindJSON(&es); err != nil {
		response.BadRequests(c, err.Error())
		return
	}
	if es.Tenant == "" {
		// meta里带的租户优先，都没有就落默认租户
		es.Tenant = cast.ToString(es.Meta["tenant"])
	}
	if es.Tenant == "" {
		es.Tenant = "default"
	}
	if es.Timestamp.IsZero() {
		es.Timestamp = time.Now()
	}

	logger.Info("[Webhook] 收到外部信号",
		logger.Pair("tenant", es.Tenant),
		logger.Pair("symbol", es.Symbol),
		logger.Pair("strategy", es.Strategy),
	)

	dec, err := h.engine.SubmitSignal(c.Request.Context(), es)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTenant) {
			response.BadRequests(c, err.Error())
			return
		}
		if errors.Is(err, service.ErrQueueFull) {
			response.Busy(c, err.Error())
			return
		}
		response.InternalErr(c, err)
		return
	}
	response.JSON(c, nil, dec)
}

// HandleFill 执行边界的成交回报兜底入口（主路径是Kafka）
func (h *Handler) HandleFill(c *gin.Context) {
	signature := c.GetHeader(consts.SignatureHeader)
	if signature == "" {
		response.RequireAuthErr(c, errors.New("missing signature"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequests(c, "failed to read body")
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	if !verifySignature(body, signature) {
		response.RequireAuthErr(c, errors.New("signature mismatch"))
		return
	}

	var fill model.Fill
	if err := c.ShouldBindJSON(&fill); err != nil {
		response.BadRequests(c, err.Error())
		return
	}
	if fill.OrderID == "" || fill.ExecutionID == "" {
		response.BadRequests(c, "order_id and execution_id are required")
		return
	}
	if fill.TenantID == "" {
		fill.TenantID = "default"
	}
	if fill.ClosedAt.IsZero() {
		fill.ClosedAt = time.Now()
	}

	if err := h.engine.ApplyFill(c.Request.Context(), fill); err != nil {
		if errors.Is(err, service.ErrUnknownTenant) {
			response.BadRequests(c, err.Error())
			return
		}
		if errors.Is(err, service.ErrQueueFull) {
			response.Busy(c, err.Error())
			return
		}
		response.InternalErr(c, err)
		return
	}
	response.JSON(c, nil, gin.H{"accepted": fill.Key()})
}

func verifySignature(body []byte, signatureHeader string) bool {
	secret := conf.AppConfig.Webhook.Secret

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	expectedMAC := h.Sum(nil)
	providedMAC, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	return hmac.Equal(providedMAC, expectedMAC)
}
