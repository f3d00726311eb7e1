package conf

import (
	"fmt"
	"os"
	"time"

	"quantgate/internal/model"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// 配置加载 所有开关集中在一个yaml里，启动时校验，非法直接fail fast

type WebhookConfig struct {
	Secret string `yaml:"secret" validate:"required,min=16"`
}

type Okx struct {
	ApiKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
	Password  string `yaml:"password"`
	Simulated bool   `yaml:"simulated"`
}

type Db struct {
	DbName   string `yaml:"dbname" validate:"required"`
	Host     string `yaml:"host" validate:"required"`
	Port     string `yaml:"port" validate:"required"`
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password"`
}

// 管道全局参数
type PipelineConfig struct {
	Tenants []string `yaml:"tenants" validate:"required,min=1"`
	Symbols []string `yaml:"symbols" validate:"required,min=1"`
	// 是否启用高低周期一致性拦截（默认开）
	HTFGating bool `yaml:"htf_gating"`
	// 特征提取最小K线窗口
	MinBars int `yaml:"min-bars" validate:"gte=20"`
	// 合约每点美元价值
	DollarPerPoint float64 `yaml:"dollar-per-point" validate:"gt=0"`
	// 最小价格变动
	TickSize float64 `yaml:"tick-size" validate:"gt=0"`
}

// 风控参数 单位是R
type RiskConfig struct {
	RiskPerTrade   float64 `yaml:"risk-per-trade" validate:"gt=0"`   // 单笔风险预算（美元）
	DailyStopR     float64 `yaml:"daily-stop-r"`                     // 日内硬止损，默认-2
	WeeklyStopR    float64 `yaml:"weekly-stop-r"`                    // 周硬止损，默认-5
	MaxLossDays    int     `yaml:"max-loss-days"`                    // 连续亏损天数上限，默认3
	ScaleCeiling   float64 `yaml:"scale-ceiling"`                    // 软性放大乘数上限
	DailyLossUSD   float64 `yaml:"daily-loss-limit" validate:"gt=0"` // DLL（美元）
	ConsistencyPct float64 `yaml:"consistency-pct"`                  // 单日利润占比上限
}

// 心理状态调节
type MentalConfig struct {
	// 等级1~5对应的仓位乘数，等级1必须为0（禁止交易）
	Multipliers []float64 `yaml:"multipliers" validate:"omitempty,len=5"`
	// 等级1触发后的冷却时间（分钟）
	CooldownMinutes int `yaml:"cooldown-minutes"`
	// 连续亏损几笔自动降级
	DowngradeStreak int `yaml:"downgrade-streak"`
	// 当日回撤到多少R自动降级
	DowngradeDailyR float64 `yaml:"downgrade-daily-r"`
}

// 合规约束
type ConstraintConfig struct {
	MinStopTicks   float64 `yaml:"min-stop-ticks"`   // 止损距离下限（tick）
	MaxSpreadTicks float64 `yaml:"max-spread-ticks"` // 点差上限（tick）
	MinRiskReward  float64 `yaml:"min-risk-reward"`  // 盈亏比下限
}

// 新闻黑名单窗口
type NewsConfig struct {
	BlackoutBefore int    `yaml:"blackout-before"` // 事件前几分钟
	BlackoutAfter  int    `yaml:"blackout-after"`  // 事件后几分钟
	MinImpact      string `yaml:"min-impact" validate:"omitempty,oneof=low medium high"`
}

// 执行质量闸门
type ExecutionConfig struct {
	MaxSpreadTicks   float64 `yaml:"max-spread-ticks"`
	MaxSlippageTicks float64 `yaml:"max-slippage-ticks"`
	QuoteTimeoutMS   int     `yaml:"quote-timeout-ms"` // 拉取实时报价的超时
	QuoteMaxAgeMS    int     `yaml:"quote-max-age-ms"` // 报价过期阈值
}

func (e ExecutionConfig) QuoteTimeout() time.Duration {
	if e.QuoteTimeoutMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(e.QuoteTimeoutMS) * time.Millisecond
}

func (e ExecutionConfig) QuoteMaxAge() time.Duration {
	if e.QuoteMaxAgeMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(e.QuoteMaxAgeMS) * time.Millisecond
}

type CalendarConfig struct {
	Path          string `yaml:"path" validate:"required"`
	ReloadSeconds int    `yaml:"reload-seconds"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
}

type KafkaConfig struct {
	Broker     string `yaml:"broker"`
	Topic      string `yaml:"topic"`       // 决策流写出
	FillsTopic string `yaml:"fills-topic"` // 成交回报读入
}

type RecorderConfig struct {
	Path string `yaml:"path"`
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen" validate:"required"`
	Mode         string `yaml:"mode"`
	Language     string `yaml:"language"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Webhook    WebhookConfig `yaml:"webhook"`
	Okx        `yaml:"okx"`
	Db         `yaml:"database"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Risk       RiskConfig       `yaml:"risk"`
	Mental     MentalConfig     `yaml:"mental"`
	Constraint ConstraintConfig `yaml:"constraint"`
	News       NewsConfig       `yaml:"news"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Recorder   RecorderConfig   `yaml:"recorder"`
}

var AppConfig Config

func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	if err := yaml.Unmarshal(data, &AppConfig); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	AppConfig.applyDefaults()
	return AppConfig.Validate()
}

// 没写的配置给出安全默认值
func (c *Config) applyDefaults() {
	if c.Risk.DailyStopR == 0 {
		c.Risk.DailyStopR = -2
	}
	if c.Risk.WeeklyStopR == 0 {
		c.Risk.WeeklyStopR = -5
	}
	if c.Risk.MaxLossDays == 0 {
		c.Risk.MaxLossDays = 3
	}
	if c.Risk.ScaleCeiling == 0 {
		c.Risk.ScaleCeiling = 1.5
	}
	if c.Risk.ConsistencyPct == 0 {
		c.Risk.ConsistencyPct = 0.4
	}
	if len(c.Mental.Multipliers) == 0 {
		c.Mental.Multipliers = []float64{0, 0.25, 0.5, 0.75, 1.0}
	}
	if c.Mental.CooldownMinutes == 0 {
		c.Mental.CooldownMinutes = 60
	}
	if c.Mental.DowngradeStreak == 0 {
		c.Mental.DowngradeStreak = 2
	}
	if c.Mental.DowngradeDailyR == 0 {
		c.Mental.DowngradeDailyR = -1.5
	}
	if c.Constraint.MinStopTicks == 0 {
		c.Constraint.MinStopTicks = 10
	}
	if c.Constraint.MaxSpreadTicks == 0 {
		c.Constraint.MaxSpreadTicks = 2
	}
	if c.Constraint.MinRiskReward == 0 {
		c.Constraint.MinRiskReward = 1.5
	}
	if c.News.BlackoutBefore == 0 {
		c.News.BlackoutBefore = 30
	}
	if c.News.BlackoutAfter == 0 {
		c.News.BlackoutAfter = 15
	}
	if c.News.MinImpact == "" {
		c.News.MinImpact = "medium"
	}
	if c.Execution.MaxSpreadTicks == 0 {
		c.Execution.MaxSpreadTicks = 2
	}
	if c.Execution.MaxSlippageTicks == 0 {
		c.Execution.MaxSlippageTicks = 3
	}
	if c.Pipeline.MinBars == 0 {
		c.Pipeline.MinBars = 30
	}
}

// Validate 启动期校验 任何一条不满足都拒绝启动
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return &model.ConfigurationError{Field: "config", Detail: err.Error()}
	}
	// 等级1乘数必须是0，否则"禁止交易"名存实亡
	if c.Mental.Multipliers[0] != 0 {
		return &model.ConfigurationError{Field: "mental.multipliers", Detail: "level 1 multiplier must be 0"}
	}
	// 乘数必须单调不减
	for i := 1; i < len(c.Mental.Multipliers); i++ {
		if c.Mental.Multipliers[i] < c.Mental.Multipliers[i-1] {
			return &model.ConfigurationError{Field: "mental.multipliers", Detail: "multipliers must be non-decreasing"}
		}
	}
	if c.Risk.DailyStopR >= 0 || c.Risk.WeeklyStopR >= 0 {
		return &model.ConfigurationError{Field: "risk", Detail: "stop thresholds must be negative"}
	}
	return nil
}
