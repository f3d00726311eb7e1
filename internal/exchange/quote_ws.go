package exchange

import (
	"strings"
	"sync"
	"time"

	"quantgate/internal/model"
	"quantgate/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
)

// OKX 公共行情 WebSocket
// 订阅 tickers 频道，把最新盘口缓存在内存里，执行守卫查询时零延迟。
// 断线自动重连并恢复全部订阅。

const (
	okxPublicWsURL = "wss://ws.okx.com:8443/ws/v5/public"
	pingInterval   = 15 * time.Second
	reconnectDelay = 2 * time.Second
)

type WSQuoteService struct {
	sync.RWMutex
	conn    *websocket.Conn
	url     string
	symbols []string
	quotes  map[string]model.Quote
	closeCh chan struct{}
	running bool
}

func NewWSQuoteService(symbols []string) *WSQuoteService {
	return &WSQuoteService{
		url:     okxPublicWsURL,
		symbols: symbols,
		quotes:  make(map[string]model.Quote),
		closeCh: make(chan struct{}),
	}
}

// Start 启动连接管理协程 幂等
func (s *WSQuoteService) Start() {
	s.Lock()
	if s.running {
		s.Unlock()
		return
	}
	s.running = true
	s.Unlock()
	go s.run()
}

func (s *WSQuoteService) Close() {
	close(s.closeCh)
	s.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.Unlock()
}

// Cached 内存里的最新报价 没有返回false
func (s *WSQuoteService) Cached(symbol string) (model.Quote, bool) {
	s.RLock()
	defer s.RUnlock()
	q, ok := s.quotes[ToInstID(symbol)]
	return q, ok
}

// 连接/重连主循环
func (s *WSQuoteService) run() {
	logger.Info("行情WebSocket连接管理启动")
	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			logger.Warnf("行情WebSocket连接失败，%s后重试: %v", reconnectDelay, err)
			time.Sleep(reconnectDelay)
			continue
		}

		s.Lock()
		s.conn = conn
		s.Unlock()

		if err := s.subscribeAll(conn); err != nil {
			logger.Errorf("行情订阅失败: %v", err)
			_ = conn.Close()
			time.Sleep(reconnectDelay)
			continue
		}

		go s.startPingLoop(conn)
		s.readLoop(conn)

		// readLoop返回说明连接断了，回到循环顶部重连
		select {
		case <-s.closeCh:
			return
		default:
			logger.Warn("行情WebSocket断开，准备重连")
		}
	}
}

func (s *WSQuoteService) subscribeAll(conn *websocket.Conn) error {
	args := make([]map[string]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		args = append(args, map[string]string{
			"channel": "tickers",
			"instId":  ToInstID(sym),
		})
	}
	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	return conn.WriteJSON(subMsg)
}

func (s *WSQuoteService) startPingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				logger.Warnf("行情Ping失败，ping协程退出: %v", err)
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

// tickers频道的推送结构
type tickerMsg struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
		BidPx  string `json:"bidPx"`
		BidSz  string `json:"bidSz"`
		AskPx  string `json:"askPx"`
		AskSz  string `json:"askSz"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

func (s *WSQuoteService) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return
		}
		if string(raw) == "pong" {
			continue
		}

		var msg tickerMsg
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Arg.Channel != "tickers" {
			continue
		}

		for _, d := range msg.Data {
			q := model.Quote{
				Symbol:    d.InstID,
				Bid:       cast.ToFloat64(d.BidPx),
				Ask:       cast.ToFloat64(d.AskPx),
				BidSize:   cast.ToFloat64(d.BidSz),
				AskSize:   cast.ToFloat64(d.AskSz),
				Last:      cast.ToFloat64(d.Last),
				Timestamp: time.UnixMilli(cast.ToInt64(d.Ts)),
			}
			s.Lock()
			s.quotes[d.InstID] = q
			s.Unlock()
		}
	}
}

// ToInstID 内部symbol格式转OKX instId: "BTC/USDT" -> "BTC-USDT"
func ToInstID(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
}
