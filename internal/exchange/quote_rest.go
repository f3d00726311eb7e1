package exchange

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"quantgate/internal/model"

	goexv2 "github.com/nntaoli-project/goex/v2"
	gmodel "github.com/nntaoli-project/goex/v2/model"
)

// REST报价兜底 公开接口不需要apikey
// 交易对元信息懒加载一次，之后常驻内存

type RestQuoteClient struct {
	mu     sync.Mutex
	pub    goexv2.IPubRest
	exInfo map[string]gmodel.CurrencyPair
}

func NewRestQuoteClient() *RestQuoteClient {
	return &RestQuoteClient{pub: goexv2.OKx.Spot}
}

func (c *RestQuoteClient) Ticker(symbol string) (*model.Quote, error) {
	pair, err := c.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}

	tk, _, err := c.pub.GetTicker(pair)
	if err != nil {
		return nil, fmt.Errorf("get ticker %s: %w", symbol, err)
	}

	return &model.Quote{
		Symbol:    symbol,
		Bid:       tk.Buy,
		Ask:       tk.Sell,
		Last:      tk.Last,
		Timestamp: time.UnixMilli(tk.Timestamp),
	}, nil
}

// symbol 格式转换: "BTC/USDT" -> goex 需要的 CurrencyPair
func (c *RestQuoteClient) toCurrencyPair(symbol string) (gmodel.CurrencyPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exInfo == nil {
		info, _, err := c.pub.GetExchangeInfo()
		if err != nil {
			return gmodel.CurrencyPair{}, fmt.Errorf("get exchange info: %w", err)
		}
		c.exInfo = info
	}

	want := normalize(symbol)
	for key, pair := range c.exInfo {
		if normalize(key) == want || normalize(pair.Symbol) == want {
			return pair, nil
		}
	}
	return gmodel.CurrencyPair{}, fmt.Errorf("unknown symbol: %s", symbol)
}

func normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
