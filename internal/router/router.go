package router

import (
	"quantgate/internal/handler/decision"
	"quantgate/internal/handler/ping"
	"quantgate/internal/handler/state"
	"quantgate/internal/handler/webhook"
	"quantgate/internal/middleware"
	"quantgate/internal/service"

	"github.com/gin-gonic/gin"
)

// 路由装配
// webhook入口带HMAC验签，状态接口只读（除了心理覆盖和人工恢复）

func New(mode string, engine *service.Engine) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestId())
	r.Use(middleware.Logger)
	r.Use(middleware.NoCache(), middleware.Options(), middleware.Secure())

	r.GET("/ping", ping.Ping())

	wh := webhook.NewHandler(engine)
	st := state.NewHandler(engine)
	dc := decision.NewHandler(engine)

	api := r.Group("/api")
	{
		api.POST("/webhook/signal", wh.HandleSignal)
		api.POST("/webhook/fill", wh.HandleFill)

		sg := api.Group("/state")
		{
			sg.GET("/risk", st.Risk)
			sg.GET("/regime", st.Regime)
			sg.GET("/mental", st.Mental)
			sg.POST("/mental", st.OverrideMental)
			sg.POST("/resume", st.Resume)
		}

		dg := api.Group("/decisions")
		{
			dg.GET("/recent", dc.Recent)
			dg.GET("/history", dc.History)
			dg.GET("/stats", dc.Stats)
		}
	}

	return r
}
