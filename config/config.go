package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Database  DatabaseConfig        `mapstructure:"database"`
	Redis     RedisConfig           `mapstructure:"redis"`
	JWT       JWTConfig             `mapstructure:"jwt"`
	CORS      CORSConfig            `mapstructure:"cors"`
	Store     StoreConfig           `mapstructure:"store"`
	Billing   BillingConfig         `mapstructure:"billing"`
	Plans     map[string]PlanConfig `mapstructure:"plans"`
	Addons    []AddonConfig         `mapstructure:"addons"`
	Reconcile ReconcileConfig       `mapstructure:"reconcile"`
	Retry     RetryConfig           `mapstructure:"retry"`
	Gateways  GatewaysConfig        `mapstructure:"gateways"`
	Log       LogConfig             `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// StoreConfig 选择账本存储后端
type StoreConfig struct {
	Backend   string `mapstructure:"backend"`    // gorm, redis
	KeyPrefix string `mapstructure:"key_prefix"` // redis 文档键前缀
}

type BillingConfig struct {
	Currency        string `mapstructure:"currency"`
	AmountTolerance string `mapstructure:"amount_tolerance"`
	MinPayment      string `mapstructure:"min_payment"`
}

// PlanConfig 单个套餐的价格与月度额度，价格按币种配置
type PlanConfig struct {
	MonthlyPrice map[string]string `mapstructure:"monthly_price"`
	AnnualPrice  map[string]string `mapstructure:"annual_price"`
	MonthlyImage int               `mapstructure:"monthly_image"`
	MonthlyVideo int               `mapstructure:"monthly_video"`
}

type AddonConfig struct {
	ID                string            `mapstructure:"id"`
	Price             map[string]string `mapstructure:"price"`
	ImageCredits      int               `mapstructure:"image_credits"`
	VideoAudioCredits int               `mapstructure:"video_audio_credits"`
}

type ReconcileConfig struct {
	Schedule    string `mapstructure:"schedule"`
	Concurrency int    `mapstructure:"concurrency"`
	CronSecret  string `mapstructure:"cron_secret"`
}

type RetryConfig struct {
	Queue       string `mapstructure:"queue"`
	MaxWorkers  int    `mapstructure:"max_workers"`
	MaxAttempts int    `mapstructure:"max_attempts"` // 超过后丢弃并告警
}

type GatewaysConfig struct {
	Wechat WechatConfig `mapstructure:"wechat"`
	Alipay AlipayConfig `mapstructure:"alipay"`
}

type WechatConfig struct {
	APIv3Key            string `mapstructure:"api_v3_key"`
	PlatformCertificate string `mapstructure:"platform_certificate"` // 平台证书 PEM
}

type AlipayConfig struct {
	AppID         string `mapstructure:"app_id"`
	AppPrivateKey string `mapstructure:"app_private_key"` // 应用私钥
	PublicKey     string `mapstructure:"public_key"`      // 支付宝公钥
	Production    bool   `mapstructure:"production"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default 内置默认配置，套餐价格与额度沿用线上定价表
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "debug"},
		Database: DatabaseConfig{Driver: "mysql", Port: 3306, MaxIdleConns: 10, MaxOpenConns: 50},
		Redis:    RedisConfig{Host: "127.0.0.1", Port: 6379, PoolSize: 20},
		Store:    StoreConfig{Backend: "gorm", KeyPrefix: "ledger"},
		Billing: BillingConfig{
			Currency:        "CNY",
			AmountTolerance: "0.01",
			MinPayment:      "0.01",
		},
		Plans: map[string]PlanConfig{
			"free": {
				MonthlyImage: 30,
				MonthlyVideo: 5,
			},
			"basic": {
				MonthlyPrice: map[string]string{"USD": "9.98", "CNY": "29.90"},
				AnnualPrice:  map[string]string{"USD": "83.88", "CNY": "251.16"},
				MonthlyImage: 100,
				MonthlyVideo: 20,
			},
			"pro": {
				MonthlyPrice: map[string]string{"USD": "39.98", "CNY": "99.90"},
				AnnualPrice:  map[string]string{"USD": "335.88", "CNY": "839.16"},
				MonthlyImage: 500,
				MonthlyVideo: 100,
			},
			"enterprise": {
				MonthlyPrice: map[string]string{"USD": "99.98", "CNY": "299.90"},
				AnnualPrice:  map[string]string{"USD": "839.88", "CNY": "2519.16"},
				MonthlyImage: 1500,
				MonthlyVideo: 300,
			},
		},
		Addons: []AddonConfig{
			{ID: "addon_starter", Price: map[string]string{"USD": "3.98", "CNY": "9.90"}, ImageCredits: 30, VideoAudioCredits: 5},
			{ID: "addon_standard", Price: map[string]string{"USD": "9.98", "CNY": "29.90"}, ImageCredits: 100, VideoAudioCredits: 20},
			{ID: "addon_premium", Price: map[string]string{"USD": "29.98", "CNY": "69.90"}, ImageCredits: 300, VideoAudioCredits: 60},
		},
		Reconcile: ReconcileConfig{Schedule: "@hourly", Concurrency: 4},
		Retry:     RetryConfig{Queue: "ledger:retry_events", MaxWorkers: 2, MaxAttempts: 10},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}
