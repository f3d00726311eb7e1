package main

import (
	"context"
	"flag"
	"log"
	"time"

	"quantgate/conf"
	"quantgate/internal/calendar"
	"quantgate/internal/dao"
	"quantgate/internal/exchange"
	"quantgate/internal/feature"
	"quantgate/internal/fusion"
	"quantgate/internal/guard"
	"quantgate/internal/model/entity"
	"quantgate/internal/pipeline"
	"quantgate/internal/risk"
	"quantgate/internal/router"
	"quantgate/internal/service"
	"quantgate/internal/sizer"
	"quantgate/internal/strategy"
	"quantgate/pkg/cache"
	"quantgate/pkg/db"
	"quantgate/pkg/kafka"
	"quantgate/pkg/logger"
	"quantgate/pkg/recorder"
	"quantgate/pkg/validator"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
)

/*
测试

BODY='{"tenant":"default","symbol":"BTC/USDT","direction":"long","entry":29500,"stop":29350,"target":29950,"strategy":"tv-orb-5m"}'
SECRET="ab12cd34ef56abcdef1234567890abcdef1234567890abcdef1234567890"
SIGNATURE=$(echo -n $BODY | openssl dgst -sha256 -hmac $SECRET | sed 's/^.* //')

curl -X POST http://localhost:8090/api/webhook/signal \
  -H "Content-Type: application/json" \
  -H "X-Signature: $SIGNATURE" \
  -d "$BODY"
*/

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置文件 非法配置直接拒绝启动
	if err := conf.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := &conf.AppConfig

	logger.Init(appCfg.Log)
	defer func() { _ = logger.Sync() }()

	validator.LazyInitGinValidator(appCfg.Language)

	// ==== 基础设施 ====

	var rdb *redis.Client
	if appCfg.Redis.Addr != "" {
		cache.InitRedis(appCfg.Redis)
		rdb = cache.GetRedisClient()
		defer cache.CloseRedis()
	}

	var decisionDao dao.DecisionDao
	if appCfg.Db.Host != "" {
		gdb := db.Init(db.NewConfig(appCfg.Db.Username, appCfg.Db.Password, appCfg.Db.Host, appCfg.Db.Port, appCfg.Db.DbName))
		if err := gdb.AutoMigrate(&entity.Decision{}, &entity.Fill{}); err != nil {
			logger.Fatalf("数据库迁移失败: %v", err)
		}
		decisionDao = dao.NewDecisionDao(gdb)
	}

	var producer kafka.ProducerService
	var consumer kafka.ConsumerService
	if appCfg.Kafka.Broker != "" {
		producer = kafka.NewKafkaProducer(appCfg.Kafka.Broker, appCfg.Kafka.Topic)
		defer producer.Close()
		consumer = kafka.NewKafkaConsumer(appCfg.Kafka.Broker)
		defer consumer.Close()
	}

	var rec *recorder.JSONFileRecorder
	if appCfg.Recorder.Path != "" {
		var err error
		rec, err = recorder.NewJSONFileRecorder(appCfg.Recorder.Path)
		if err != nil {
			logger.Fatalf("决策记录文件打开失败: %v", err)
		}
		defer func() { _ = rec.Close() }()
	}

	// ==== 领域组件 ====

	cal, err := calendar.Load(appCfg.Calendar.Path, time.Duration(appCfg.Calendar.ReloadSeconds)*time.Second)
	if err != nil {
		logger.Fatalf("财经日历加载失败: %v", err)
	}

	// 行情来源：K线驱动决策，盘口服务执行质量检查
	candles := exchange.NewCandleService(appCfg.Pipeline.Symbols, "5m")
	quoteWS := exchange.NewWSQuoteService(appCfg.Pipeline.Symbols)
	quotes := exchange.NewQuoteService(quoteWS, exchange.NewRestQuoteClient())
	candles.Start()
	quoteWS.Start()
	defer candles.Close()
	defer quoteWS.Close()

	// 内置策略注册
	strategy.Register(strategy.NewORBStrategy())
	strategy.Register(strategy.NewVWAPRevertStrategy())

	node, err := snowflake.NewNode(1)
	if err != nil {
		logger.Fatalf("snowflake初始化失败: %v", err)
	}

	extractorCfg := feature.DefaultConfig()
	extractorCfg.MinBars = appCfg.Pipeline.MinBars
	extractorCfg.TickSize = appCfg.Pipeline.TickSize
	extractor := feature.NewExtractor(extractorCfg)

	fusionCfg := fusion.DefaultConfig()
	fusionCfg.Enabled = appCfg.Pipeline.HTFGating

	governor := risk.NewGovernor(appCfg.Risk)
	mentalMgr := risk.NewMentalManager(appCfg.Mental)
	sz := sizer.New(appCfg.Pipeline.DollarPerPoint)
	slips := risk.NewSlipTracker()

	newOrch := func(tenant string) *pipeline.Orchestrator {
		return pipeline.NewOrchestrator(tenant, pipeline.Deps{
			Extractor: extractor,
			// 高周期聚合按租户独立 共享实例会把同一根K线的量算多次
			Fusion:   fusion.New(fusionCfg),
			Calendar: cal,
			Governor: governor,
			Mental:   mentalMgr,
			Sizer:    sz,
			PreGuards: guard.NewChain(
				guard.NewNewsGuard(cal, appCfg.News),
				guard.NewMentalGuard(mentalMgr),
			),
			SigGuards: guard.NewChain(
				guard.NewConstraintGuard(appCfg.Constraint, appCfg.Pipeline.TickSize),
			),
			ExecGuard: guard.NewExecutionGuard(quotes, appCfg.Execution, appCfg.Pipeline.TickSize),
			Slips:     slips,
			NewsCfg:   appCfg.News,
			Node:      node,
		})
	}

	engine := service.NewEngine(service.Options{
		Tenants:   appCfg.Pipeline.Tenants,
		NewOrch:   newOrch,
		Deduper:   risk.NewDeduper(rdb),
		Snapshots: risk.NewSnapshotStore(rdb),
		Sinks: service.Sinks{
			Dao:      decisionDao,
			Producer: producer,
			Recorder: rec,
		},
		Candles:    candles,
		Consumer:   consumer,
		FillsTopic: appCfg.Kafka.FillsTopic,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	// ==== HTTP服务 ====

	g := router.New(appCfg.Mode, engine)
	srv := NewServer(appCfg)
	srv.RegisterOnShutdown(func() {
		cancel()
	})
	srv.Run(g)
}
