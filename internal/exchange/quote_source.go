package exchange

import (
	"context"

	"quantgate/internal/model"
	"quantgate/pkg/logger"
)

// 组合报价源 WebSocket缓存优先，REST兜底
// 两边都拿不到时返回ExecutionUnavailableError，让执行守卫按"不可用"拒绝

type QuoteService struct {
	ws   *WSQuoteService
	rest *RestQuoteClient
}

func NewQuoteService(ws *WSQuoteService, rest *RestQuoteClient) *QuoteService {
	return &QuoteService{ws: ws, rest: rest}
}

func (s *QuoteService) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	if s.ws != nil {
		if q, ok := s.ws.Cached(symbol); ok {
			return &q, nil
		}
	}

	if s.rest == nil {
		return nil, &model.ExecutionUnavailableError{Cause: context.DeadlineExceeded}
	}

	// REST调用受调用方的超时context约束
	type result struct {
		q   *model.Quote
		err error
	}
	ch := make(chan result, 1)
	go func() {
		q, err := s.rest.Ticker(symbol)
		ch <- result{q, err}
	}()

	select {
	case <-ctx.Done():
		return nil, &model.ExecutionUnavailableError{Cause: ctx.Err()}
	case r := <-ch:
		if r.err != nil {
			logger.Warnf("[exchange] REST报价兜底失败 %s: %v", symbol, r.err)
			return nil, &model.ExecutionUnavailableError{Cause: r.err}
		}
		return r.q, nil
	}
}
