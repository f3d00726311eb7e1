package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"quantgate/internal/consts"
	"quantgate/internal/dao"
	"quantgate/internal/exchange"
	"quantgate/internal/model"
	"quantgate/internal/model/entity"
	"quantgate/internal/pipeline"
	"quantgate/internal/risk"
	"quantgate/pkg/kafka"
	"quantgate/pkg/logger"
	"quantgate/pkg/recorder"

	json "github.com/goccy/go-json"
)

// 决策引擎
// 每个租户一条串行工作队列：同一租户的bar/信号/成交严格按到达顺序处理，
// 租户之间完全并发。编排器因此不需要任何锁。

var (
	ErrUnknownTenant = errors.New("unknown tenant")
	// 租户队列满 调用方应稍后重试（成交回报会由Kafka重投）
	ErrQueueFull = errors.New("tenant task queue full")
	// 没配数据库时历史查询不可用
	ErrJournalDisabled = errors.New("decision journal disabled")
)

// 工作队列容量 满了说明该租户的决策跟不上行情，丢弃并报警
const taskQueueSize = 512

type task func()

// 决策的下游出口 都是可选的，配了才写
type Sinks struct {
	Dao      dao.DecisionDao
	Producer kafka.ProducerService
	Recorder *recorder.JSONFileRecorder
}

type Engine struct {
	orchs     map[string]*pipeline.Orchestrator
	queues    map[string]chan task
	deduper   *risk.Deduper
	snapshots *risk.SnapshotStore
	sinks     Sinks

	candles    *exchange.CandleService
	consumer   kafka.ConsumerService
	fillsTopic string

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

type Options struct {
	Tenants    []string
	NewOrch    func(tenant string) *pipeline.Orchestrator
	Deduper    *risk.Deduper
	Snapshots  *risk.SnapshotStore
	Sinks      Sinks
	Candles    *exchange.CandleService
	Consumer   kafka.ConsumerService
	FillsTopic string
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		orchs:      make(map[string]*pipeline.Orchestrator, len(opts.Tenants)),
		queues:     make(map[string]chan task, len(opts.Tenants)),
		deduper:    opts.Deduper,
		snapshots:  opts.Snapshots,
		sinks:      opts.Sinks,
		candles:    opts.Candles,
		consumer:   opts.Consumer,
		fillsTopic: opts.FillsTopic,
	}
	for _, t := range opts.Tenants {
		orch := opts.NewOrch(t)
		// 有历史快照就恢复风控账本，重启不丢当日/当周的已实现盈亏
		if rs := e.snapshots.Load(context.Background(), t); rs != nil {
			orch.RestoreRiskState(rs)
			logger.Infof("[engine] 租户 %s 风控状态已从快照恢复 dailyR=%.2f", t, rs.DailyR)
		}
		e.orchs[t] = orch
		e.queues[t] = make(chan task, taskQueueSize)
	}
	return e
}

// Start 启动所有工作协程 ctx取消时整体退出
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	for tenant, q := range e.queues {
		e.wg.Add(1)
		go e.worker(ctx, tenant, q)
	}

	if e.candles != nil {
		e.wg.Add(1)
		go e.barLoop(ctx)
	}
	if e.consumer != nil && e.fillsTopic != "" {
		e.wg.Add(1)
		go e.fillLoop(ctx)
	}

	e.wg.Add(1)
	go e.boundaryLoop(ctx)
}

// Wait 阻塞到所有工作协程退出
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) worker(ctx context.Context, tenant string, q chan task) {
	defer e.wg.Done()
	logger.Infof("[engine] 租户 %s 工作协程启动", tenant)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q:
			t()
		}
	}
}

// 行情扇出 一根收盘K线驱动所有租户各自决策一次
func (e *Engine) barLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.candles.Bars():
			if !ok {
				return
			}
			for tenant := range e.orchs {
				e.enqueue(tenant, func(t string) task {
					return func() {
						dec, err := e.orchs[t].OnBar(ctx, ev.Symbol, ev.Bar)
						if err != nil {
							logger.Errorf("[engine] %s OnBar失败: %v", t, err)
							return
						}
						e.publish(ctx, dec)
					}
				}(tenant))
			}
		}
	}
}

// 成交回报消费 执行边界经Kafka回报平仓结果
func (e *Engine) fillLoop(ctx context.Context) {
	defer e.wg.Done()
	ch, err := e.consumer.Consume(ctx, e.fillsTopic, consts.FillConsumerGroup)
	if err != nil {
		logger.Errorf("[engine] 成交回报消费启动失败: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var fill model.Fill
			if err := json.Unmarshal(m.Value, &fill); err != nil {
				logger.Warnf("[engine] 非法成交回报消息: %v", err)
				continue
			}
			if err := e.ApplyFill(ctx, fill); err != nil {
				logger.Warnf("[engine] 成交回报处理失败: %v", err)
			}
		}
	}
}

// 日/周边界调度 每分钟查一次跨没跨界
func (e *Engine) boundaryLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Day() != last.Day() {
				for tenant := range e.orchs {
					e.enqueue(tenant, func(t string) task {
						return func() {
							e.orchs[t].ResetDay()
							if now.Weekday() == time.Monday {
								e.orchs[t].ResetWeek()
							}
							e.snapshots.Save(ctx, e.orchs[t].RiskSnapshot())
						}
					}(tenant))
				}
				logger.Info("日边界清零已调度", logger.Pair("date", now.Format(consts.DateLayout)))
			}
			last = now
		}
	}
}

// 入队失败返回false 调用方决定是丢弃（行情）还是报错（同步调用）
func (e *Engine) enqueue(tenant string, t task) bool {
	q, ok := e.queues[tenant]
	if !ok {
		return false
	}
	select {
	case q <- t:
		return true
	default:
		// 队列满说明该租户的决策跟不上 绝不阻塞行情线程
		logger.Errorf("[engine] 租户 %s 任务队列已满，任务被拒绝", tenant)
		return false
	}
}

// SubmitSignal 外部信号同步走完整条管道，返回唯一决策
func (e *Engine) SubmitSignal(ctx context.Context, es model.ExternalSignal) (*model.Decision, error) {
	orch, ok := e.orchs[es.Tenant]
	if !ok {
		return nil, ErrUnknownTenant
	}

	type outcome struct {
		dec *model.Decision
		err error
	}
	done := make(chan outcome, 1)
	ok = e.enqueue(es.Tenant, func() {
		dec, err := orch.OnExternalSignal(ctx, es)
		if dec != nil {
			e.publish(ctx, dec)
		}
		done <- outcome{dec, err}
	})
	if !ok {
		return nil, ErrQueueFull
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.dec, o.err
	}
}

// ApplyFill 成交回报入账 幂等：重复的(order,execution)只记一次
// 去重标记在任务体内打，入队失败时回报不会被标成已见，重试仍然有效
func (e *Engine) ApplyFill(ctx context.Context, fill model.Fill) error {
	orch, ok := e.orchs[fill.TenantID]
	if !ok {
		return ErrUnknownTenant
	}

	done := make(chan struct{})
	ok = e.enqueue(fill.TenantID, func() {
		defer close(done)
		if e.deduper != nil && !e.deduper.FirstSeen(ctx, fill.Key()) {
			logger.Infof("[engine] 重复成交回报已忽略: %s", fill.Key())
			return
		}
		orch.ApplyFill(fill)
		e.snapshots.Save(ctx, orch.RiskSnapshot())
		if e.sinks.Dao != nil {
			if err := e.sinks.Dao.SaveFill(ctx, fill); err != nil {
				logger.Warnf("[engine] 成交流水落库失败: %v", err)
			}
		}
	})
	if !ok {
		return ErrQueueFull
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// OverrideMental 手动设定某租户的心理等级
func (e *Engine) OverrideMental(ctx context.Context, tenant string, level model.MentalLevel, effective time.Duration) error {
	orch, ok := e.orchs[tenant]
	if !ok {
		return ErrUnknownTenant
	}
	done := make(chan struct{})
	if !e.enqueue(tenant, func() {
		defer close(done)
		orch.OverrideMental(level, effective)
	}) {
		return ErrQueueFull
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Resume 人工恢复（连续亏损暂停/ERROR状态）
func (e *Engine) Resume(ctx context.Context, tenant string) error {
	orch, ok := e.orchs[tenant]
	if !ok {
		return ErrUnknownTenant
	}
	done := make(chan struct{})
	if !e.enqueue(tenant, func() {
		defer close(done)
		orch.Resume()
	}) {
		return ErrQueueFull
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// ==== 只读查询 ====
// 快照查询也排进串行队列，避免和决策并发读写状态

func (e *Engine) RiskSnapshot(ctx context.Context, tenant string) (model.RiskState, error) {
	orch, ok := e.orchs[tenant]
	if !ok {
		return model.RiskState{}, ErrUnknownTenant
	}
	var rs model.RiskState
	done := make(chan struct{})
	if !e.enqueue(tenant, func() {
		defer close(done)
		rs = orch.RiskSnapshot()
	}) {
		return model.RiskState{}, ErrQueueFull
	}
	select {
	case <-ctx.Done():
		return model.RiskState{}, ctx.Err()
	case <-done:
		return rs, nil
	}
}

func (e *Engine) MentalSnapshot(ctx context.Context, tenant string) (model.MentalState, error) {
	orch, ok := e.orchs[tenant]
	if !ok {
		return model.MentalState{}, ErrUnknownTenant
	}
	var ms model.MentalState
	done := make(chan struct{})
	if !e.enqueue(tenant, func() {
		defer close(done)
		ms = orch.MentalSnapshot()
	}) {
		return model.MentalState{}, ErrQueueFull
	}
	select {
	case <-ctx.Done():
		return model.MentalState{}, ctx.Err()
	case <-done:
		return ms, nil
	}
}

// StateOf 租户管道状态与各品种最近的市场状态分类
func (e *Engine) StateOf(ctx context.Context, tenant string, symbols []string) (string, map[string]string, error) {
	orch, ok := e.orchs[tenant]
	if !ok {
		return "", nil, ErrUnknownTenant
	}
	regimes := make(map[string]string)
	var st string
	done := make(chan struct{})
	if !e.enqueue(tenant, func() {
		defer close(done)
		st = string(orch.State())
		for _, sym := range symbols {
			if rg, ok := orch.RegimeOf(sym); ok {
				regimes[sym] = rg.String()
			}
		}
	}) {
		return "", nil, ErrQueueFull
	}
	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case <-done:
		return st, regimes, nil
	}
}

// ==== 决策流水查询 ====
// 直接读库 不经过租户队列

func (e *Engine) RecentDecisions(ctx context.Context, tenant string, limit int) ([]entity.Decision, error) {
	if _, ok := e.orchs[tenant]; !ok {
		return nil, ErrUnknownTenant
	}
	if e.sinks.Dao == nil {
		return nil, ErrJournalDisabled
	}
	return e.sinks.Dao.RecentDecisions(ctx, tenant, limit)
}

func (e *Engine) DecisionHistory(ctx context.Context, tenant, symbol string, start, end time.Time) ([]entity.Decision, error) {
	if _, ok := e.orchs[tenant]; !ok {
		return nil, ErrUnknownTenant
	}
	if e.sinks.Dao == nil {
		return nil, ErrJournalDisabled
	}
	return e.sinks.Dao.DecisionsByTimeRange(ctx, tenant, symbol, start, end)
}

func (e *Engine) ApprovalRate(ctx context.Context, tenant string, since time.Time) (float64, error) {
	if _, ok := e.orchs[tenant]; !ok {
		return 0, ErrUnknownTenant
	}
	if e.sinks.Dao == nil {
		return 0, ErrJournalDisabled
	}
	return e.sinks.Dao.ApprovalRate(ctx, tenant, since)
}

// 决策写往所有配置的出口 任何一个出口失败都不影响决策本身
func (e *Engine) publish(ctx context.Context, dec *model.Decision) {
	if dec == nil {
		return
	}
	if e.sinks.Dao != nil {
		if err := e.sinks.Dao.SaveDecision(ctx, dec); err != nil {
			logger.Warnf("[engine] 决策落库失败 %s: %v", dec.ID, err)
		}
	}
	if e.sinks.Producer != nil {
		if err := e.sinks.Producer.Produce(ctx, dec.TenantID, dec); err != nil {
			logger.Warnf("[engine] 决策写Kafka失败 %s: %v", dec.ID, err)
		}
	}
	if e.sinks.Recorder != nil {
		if err := e.sinks.Recorder.Record(dec); err != nil {
			logger.Warnf("[engine] 决策写文件失败 %s: %v", dec.ID, err)
		}
	}
}
