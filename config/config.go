package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultRegion = "ap-southeast-1"

// Config 应用全局配置结构体
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"db"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Identity     IdentityConfig     `mapstructure:"identity"`
	Mail         MailConfig         `mapstructure:"mail"`
	Events       EventsConfig       `mapstructure:"events"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`
	// APIEndpoint 对外公布的 API 地址，可由运行时产物文件回填
	APIEndpoint string `mapstructure:"api_endpoint"`
	// MaxBodyBytes 请求体上限，Excel 导入同样受限
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// CORSConfig 管理控制台跨域配置
type CORSConfig struct {
	AllowOrigins []string      `mapstructure:"allow_origins"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（创建锁、限流）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 管理员会话 JWT 配置
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
}

// IdentityConfig 身份目录（Cognito 用户池）配置
type IdentityConfig struct {
	// Enabled 为 false 时视为没有管理员会话：创建用户时跳过目录写入
	Enabled    bool   `mapstructure:"enabled"`
	Region     string `mapstructure:"region"`
	UserPoolID string `mapstructure:"user_pool_id"`
	// OutputsFile 部署生成的运行时配置产物（amplify_outputs.json 结构）
	OutputsFile string `mapstructure:"outputs_file"`
}

// MailConfig SMTP 邮件配置
type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	LoginURL string `mapstructure:"login_url"`
}

// EventsConfig 生命周期事件（Kafka）配置，Brokers 为空时不发布
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ProvisioningConfig 用户开通流程配置
type ProvisioningConfig struct {
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// ReconcileInterval 为 0 时不启动后台对账
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileGrace    time.Duration `mapstructure:"reconcile_grace"`
	ReconcileBatch    int           `mapstructure:"reconcile_batch"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Service 写入每条日志的 service 字段
	Service     string   `mapstructure:"service"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 运行时产物文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.cors.max_age", "12h")
	v.SetDefault("server.max_body_bytes", 8<<20)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "rodeo_crm")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Asia/Singapore")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 无默认值的键也需注册，否则 AutomaticEnv 在 Unmarshal 时不会生效
	v.SetDefault("server.api_endpoint", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "8h")
	v.SetDefault("auth.issuer", "rodeo-crm")

	v.SetDefault("identity.enabled", false)
	v.SetDefault("identity.region", "")
	v.SetDefault("identity.user_pool_id", "")
	v.SetDefault("identity.outputs_file", "")

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.from", "noreply@rodeo-drive.com")
	v.SetDefault("mail.from_name", "Rodeo Drive CRM")
	v.SetDefault("mail.login_url", "http://localhost:5173/")

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "crm.system-users")

	v.SetDefault("provisioning.lock_ttl", "30s")
	v.SetDefault("provisioning.reconcile_interval", "0s")
	v.SetDefault("provisioning.reconcile_grace", "10m")
	v.SetDefault("provisioning.reconcile_batch", 200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.service", "rodeo-crm")
	v.SetDefault("log.output_paths", []string{"stderr"})

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if cfg.Identity.OutputsFile != "" {
		if err := cfg.applyOutputs(cfg.Identity.OutputsFile); err != nil {
			return nil, err
		}
	}
	if cfg.Identity.Region == "" {
		cfg.Identity.Region = defaultRegion
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyOutputs 读取部署生成的运行时配置产物，回填未显式配置的用户池 ID、区域与 API 地址
func (c *Config) applyOutputs(path string) error {
	ov := viper.New()
	ov.SetConfigFile(path)
	ov.SetConfigType("json")
	if err := ov.ReadInConfig(); err != nil {
		return fmt.Errorf("读取运行时配置产物失败: %w", err)
	}

	if c.Identity.UserPoolID == "" {
		c.Identity.UserPoolID = ov.GetString("auth.user_pool_id")
	}
	if region := ov.GetString("auth.aws_region"); region != "" && c.Identity.Region == "" {
		c.Identity.Region = region
	}
	if c.Server.APIEndpoint == "" {
		c.Server.APIEndpoint = ov.GetString("data.url")
	}
	return nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("配置校验失败: server.max_body_bytes 必须大于 0")
	}
	if c.Identity.Enabled && c.Identity.UserPoolID == "" {
		return fmt.Errorf("配置校验失败: identity.enabled 为 true 时 identity.user_pool_id 不能为空")
	}
	if c.Mail.Enabled && c.Mail.SMTPHost == "" {
		return fmt.Errorf("配置校验失败: mail.enabled 为 true 时 mail.smtp_host 不能为空")
	}
	return nil
}
