package exchange

import (
	"sync"
	"time"

	"quantgate/internal/model"
	"quantgate/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
)

// OKX K线 WebSocket
// 订阅candle频道，只把已收盘(confirm=1)的K线推给决策管道。
// 未收盘的bar会反复推送，拿它做决策等于拿未来数据。

const okxBusinessWsURL = "wss://ws.okx.com:8443/ws/v5/business"

// 一根收盘K线及其归属品种
type BarEvent struct {
	Symbol string
	Bar    model.Kline
}

type CandleService struct {
	sync.RWMutex
	url     string
	symbols []string
	byInst  map[string]string // instId -> 配置里的symbol写法
	period  string            // OKX标准 如"5m"
	out     chan BarEvent
	closeCh chan struct{}
	running bool
}

func NewCandleService(symbols []string, period string) *CandleService {
	if period == "" {
		period = "5m"
	}
	byInst := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		byInst[ToInstID(sym)] = sym
	}
	return &CandleService{
		url:     okxBusinessWsURL,
		symbols: symbols,
		byInst:  byInst,
		period:  period,
		out:     make(chan BarEvent, 256),
		closeCh: make(chan struct{}),
	}
}

// Bars 收盘K线事件流
func (s *CandleService) Bars() <-chan BarEvent {
	return s.out
}

func (s *CandleService) Start() {
	s.Lock()
	if s.running {
		s.Unlock()
		return
	}
	s.running = true
	s.Unlock()
	go s.run()
}

func (s *CandleService) Close() {
	close(s.closeCh)
}

func (s *CandleService) run() {
	logger.Info("K线WebSocket连接管理启动")
	defer close(s.out)

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			logger.Warnf("K线WebSocket连接失败，%s后重试: %v", reconnectDelay, err)
			time.Sleep(reconnectDelay)
			continue
		}

		if err := s.subscribeAll(conn); err != nil {
			logger.Errorf("K线订阅失败: %v", err)
			_ = conn.Close()
			time.Sleep(reconnectDelay)
			continue
		}

		go s.startPingLoop(conn)
		s.readLoop(conn)

		select {
		case <-s.closeCh:
			return
		default:
			logger.Warn("K线WebSocket断开，准备重连")
		}
	}
}

func (s *CandleService) subscribeAll(conn *websocket.Conn) error {
	args := make([]map[string]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		args = append(args, map[string]string{
			"channel": "candle" + s.period,
			"instId":  ToInstID(sym),
		})
	}
	return conn.WriteJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	})
}

func (s *CandleService) startPingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

type candleMsg struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data [][]string `json:"data"`
}

func (s *CandleService) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return
		}
		if string(raw) == "pong" {
			continue
		}

		var msg candleMsg
		if err := json.Unmarshal(raw, &msg); err != nil || len(msg.Data) == 0 {
			continue
		}

		for _, row := range msg.Data {
			// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
			if len(row) < 9 || row[8] != "1" {
				continue
			}
			bar := model.Kline{
				Timestamp: time.UnixMilli(cast.ToInt64(row[0])),
				Open:      cast.ToFloat64(row[1]),
				High:      cast.ToFloat64(row[2]),
				Low:       cast.ToFloat64(row[3]),
				Close:     cast.ToFloat64(row[4]),
				Vol:       cast.ToFloat64(row[5]),
				VolCcy:    cast.ToFloat64(row[6]),
			}
			symbol := msg.Arg.InstID
			if orig, ok := s.byInst[symbol]; ok {
				symbol = orig
			}
			ev := BarEvent{Symbol: symbol, Bar: bar}
			select {
			case s.out <- ev:
			default:
				// 消费端堵住时丢最旧的，行情不能反压决策线程
				select {
				case <-s.out:
				default:
				}
				s.out <- ev
			}
		}
	}
}
