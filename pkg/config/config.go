package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 事件通道后端
const (
	BackendNATS  = "nats"
	BackendSTAN  = "stan"
	BackendRedis = "redis"
	BackendKafka = "kafka"
	BackendLog   = "log"
)

// Config 应用配置
type Config struct {
	App struct {
		Name     string `yaml:"name"`
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	HTTP struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"http"`

	Scheduler struct {
		PriceRefreshInterval string `yaml:"price_refresh_interval"`
		AnalysisInterval     string `yaml:"analysis_interval"`
		PriceOverlap         string `yaml:"price_overlap"`
		AnalysisOverlap      string `yaml:"analysis_overlap"`
	} `yaml:"scheduler"`

	Pricing struct {
		AssetID             string        `yaml:"asset_id"`
		BaseURL             string        `yaml:"base_url"`
		Timeout             time.Duration `yaml:"timeout"`
		StalenessMultiplier float64       `yaml:"staleness_multiplier"`
	} `yaml:"pricing"`

	Axiom struct {
		TrendBaseURL  string        `yaml:"trend_base_url"`
		DetailBaseURL string        `yaml:"detail_base_url"`
		Cookies       string        `yaml:"cookies"`
		UserAgent     string        `yaml:"user_agent"`
		ProxyURL      string        `yaml:"proxy_url"`
		TimePeriod    string        `yaml:"time_period"`
		Timeout       time.Duration `yaml:"timeout"`
	} `yaml:"axiom"`

	Screening struct {
		AllowedProtocols   []string `yaml:"allowed_protocols"`
		MinAgeHours        float64  `yaml:"min_age_hours"`
		MaxBundlersPercent float64  `yaml:"max_bundlers_percent"`
		MinVolumeUSD       float64  `yaml:"min_volume_usd"`
		MinMarketCapUSD    float64  `yaml:"min_market_cap_usd"`
		MinHolders         int64    `yaml:"min_holders"`
	} `yaml:"screening"`

	Position struct {
		UserID                 string  `yaml:"user_id"`
		BuyAmountUSD           float64 `yaml:"buy_amount_usd"`
		StopLossPct            float64 `yaml:"stop_loss_pct"`
		TakeProfitElevatedPct  float64 `yaml:"take_profit_elevated_pct"`
		TakeProfitBasePct      float64 `yaml:"take_profit_base_pct"`
		AgeTierBoundaryMinutes float64 `yaml:"age_tier_boundary_minutes"`
	} `yaml:"position"`

	Enrichment struct {
		StripFields []string `yaml:"strip_fields"`
	} `yaml:"enrichment"`

	Events struct {
		Backend        string        `yaml:"backend"`
		Channel        string        `yaml:"channel"`
		PublishTimeout time.Duration `yaml:"publish_timeout"`
	} `yaml:"events"`

	NATS struct {
		URL       string `yaml:"url"`
		ClusterID string `yaml:"cluster_id"`
		ClientID  string `yaml:"client_id"`
	} `yaml:"nats"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`

	Feedback struct {
		Enabled  bool     `yaml:"enabled"`
		Respond  bool     `yaml:"respond"`
		Channels []string `yaml:"channels"`
		// RetryMin/RetryMax 订阅中断后重连的退避区间
		RetryMin time.Duration `yaml:"retry_min"`
		RetryMax time.Duration `yaml:"retry_max"`
	} `yaml:"feedback"`
}

// Default 返回带默认值的配置
func Default() *Config {
	var c Config
	c.App.Name = "token-radar"
	c.App.Env = "dev"
	c.App.LogLevel = "info"

	c.HTTP.Enabled = true
	c.HTTP.Addr = ":2233"

	c.Scheduler.PriceRefreshInterval = "@every 1m"
	c.Scheduler.AnalysisInterval = "*/5 * * * *"
	c.Scheduler.PriceOverlap = "skip"
	c.Scheduler.AnalysisOverlap = "skip"

	c.Pricing.AssetID = "So11111111111111111111111111111111111111112"
	c.Pricing.Timeout = 5 * time.Second
	c.Pricing.StalenessMultiplier = 2

	c.Axiom.TrendBaseURL = "https://api3.axiom.trade"
	c.Axiom.DetailBaseURL = "https://api9.axiom.trade"
	c.Axiom.UserAgent = "Mozilla/5.0 (compatible; Fortress-API/1.0)"
	c.Axiom.TimePeriod = "5m"
	c.Axiom.Timeout = 10 * time.Second

	c.Screening.AllowedProtocols = []string{"Pump AMM", "Pump V1", "Raydium CLMM", "Meteora AMM V2", "Raydium CPMM"}
	c.Screening.MaxBundlersPercent = 30
	c.Screening.MinVolumeUSD = 31000
	c.Screening.MinMarketCapUSD = 40000
	c.Screening.MinHolders = 100

	c.Position.BuyAmountUSD = 25
	c.Position.StopLossPct = 30
	c.Position.TakeProfitElevatedPct = 100
	c.Position.TakeProfitBasePct = 50
	c.Position.AgeTierBoundaryMinutes = 20

	c.Enrichment.StripFields = []string{"chartData"}

	c.Events.Backend = BackendNATS
	c.Events.Channel = "tradeExecution_createTokenWithPosition"
	c.Events.PublishTimeout = 5 * time.Second

	c.NATS.URL = "nats://localhost:4222"
	c.NATS.ClusterID = "test-cluster"
	c.NATS.ClientID = "token-radar"

	c.Redis.Addr = "localhost:6379"

	c.Kafka.Brokers = []string{"localhost:9092"}

	c.Feedback.Channels = []string{"tradeExecution_transactionStatusUpdate", "ws_transaction_error"}
	c.Feedback.RetryMin = time.Second
	c.Feedback.RetryMax = 30 * time.Second
	return &c
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	// .env 只是可选的本地覆盖
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	overrideFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Parse 在默认值之上解析YAML
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Scheduler.PriceRefreshInterval) == "" {
		errs = append(errs, errors.New("scheduler.price_refresh_interval 不能为空"))
	}
	if strings.TrimSpace(c.Scheduler.AnalysisInterval) == "" {
		errs = append(errs, errors.New("scheduler.analysis_interval 不能为空"))
	}
	for name, policy := range map[string]string{
		"scheduler.price_overlap":    c.Scheduler.PriceOverlap,
		"scheduler.analysis_overlap": c.Scheduler.AnalysisOverlap,
	} {
		switch policy {
		case "allow", "skip", "delay":
		default:
			errs = append(errs, fmt.Errorf("%s 不支持的取值: %q", name, policy))
		}
	}

	if c.Pricing.AssetID == "" {
		errs = append(errs, errors.New("pricing.asset_id 不能为空"))
	}
	if c.Pricing.BaseURL == "" {
		errs = append(errs, errors.New("pricing.base_url 不能为空"))
	}
	if c.Pricing.StalenessMultiplier <= 0 {
		errs = append(errs, errors.New("pricing.staleness_multiplier 必须大于0"))
	}

	if len(c.Screening.AllowedProtocols) == 0 {
		errs = append(errs, errors.New("screening.allowed_protocols 不能为空"))
	}
	if c.Screening.MinAgeHours < 0 || c.Screening.MaxBundlersPercent < 0 ||
		c.Screening.MinVolumeUSD < 0 || c.Screening.MinMarketCapUSD < 0 || c.Screening.MinHolders < 0 {
		errs = append(errs, errors.New("screening 阈值不能为负数"))
	}

	if c.Position.BuyAmountUSD <= 0 {
		errs = append(errs, errors.New("position.buy_amount_usd 必须大于0"))
	}
	if c.Position.StopLossPct <= 0 || c.Position.TakeProfitElevatedPct <= 0 || c.Position.TakeProfitBasePct <= 0 {
		errs = append(errs, errors.New("position 止盈止损比例必须大于0"))
	}
	if c.Position.AgeTierBoundaryMinutes < 0 {
		errs = append(errs, errors.New("position.age_tier_boundary_minutes 不能为负数"))
	}

	switch c.Events.Backend {
	case BackendNATS, BackendSTAN, BackendRedis, BackendKafka, BackendLog:
	default:
		errs = append(errs, fmt.Errorf("events.backend 不支持的取值: %q", c.Events.Backend))
	}
	if c.Events.Channel == "" {
		errs = append(errs, errors.New("events.channel 不能为空"))
	}

	if c.Feedback.Enabled && (c.Feedback.RetryMin <= 0 || c.Feedback.RetryMax < c.Feedback.RetryMin) {
		errs = append(errs, errors.New("feedback.retry_min 必须大于0且不大于 retry_max"))
	}

	return errors.Join(errs...)
}

// overrideFromEnv 使用环境变量覆盖配置
func overrideFromEnv(config *Config) {
	// 应用
	if env := os.Getenv("APP_NAME"); env != "" {
		config.App.Name = env
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		config.App.Env = env
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		config.App.LogLevel = env
	}
	if env := os.Getenv("PORT"); env != "" {
		config.HTTP.Addr = ":" + env
	}

	// 调度
	if env := os.Getenv("PRICE_REFRESH_INTERVAL"); env != "" {
		config.Scheduler.PriceRefreshInterval = env
	}
	if env := os.Getenv("ANALYSIS_INTERVAL"); env != "" {
		config.Scheduler.AnalysisInterval = env
	}

	// 数据源
	if env := os.Getenv("PRICE_BASE_URL"); env != "" {
		config.Pricing.BaseURL = env
	}
	if env := os.Getenv("AXIOM_COOKIES"); env != "" {
		config.Axiom.Cookies = env
	}
	if env := os.Getenv("PROXY_URL"); env != "" {
		config.Axiom.ProxyURL = env
	}

	// 仓位
	if env := os.Getenv("POSITION_USER_ID"); env != "" {
		config.Position.UserID = env
	}

	// 事件通道
	if env := os.Getenv("EVENTS_BACKEND"); env != "" {
		config.Events.Backend = env
	}
	if env := os.Getenv("NATS_URL"); env != "" {
		config.NATS.URL = env
	}
	if env := os.Getenv("NATS_CLUSTER_ID"); env != "" {
		config.NATS.ClusterID = env
	}
	if env := os.Getenv("NATS_CLIENT_ID"); env != "" {
		config.NATS.ClientID = env
	}
	if env := os.Getenv("REDIS_ADDR"); env != "" {
		config.Redis.Addr = env
	}
	if env := os.Getenv("REDIS_PASSWORD"); env != "" {
		config.Redis.Password = env
	}
	if env := os.Getenv("REDIS_DB"); env != "" {
		if db, err := strconv.Atoi(env); err == nil {
			config.Redis.DB = db
		}
	}
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		parts := strings.Split(env, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		config.Kafka.Brokers = parts
	}

	// 执行回执
	if env := os.Getenv("RESPOND_TO_REDIS"); env != "" {
		config.Feedback.Respond = env == "true"
	}
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}
