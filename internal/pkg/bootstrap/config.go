// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构。yaml 文件提供基础值，
// 关键的基础设施地址允许用环境变量覆盖，方便容器化部署。
type Config struct {
	App struct {
		HTTPPort             int `yaml:"httpPort"`
		IssuanceTTLSeconds   int `yaml:"issuanceTtlSeconds"`
		RedemptionTTLSeconds int `yaml:"redemptionTtlSeconds"`
	} `yaml:"app"`

	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`
}

// IssuanceTTL 返回发放请求的有效时长，协议默认 120 秒。
func (c *Config) IssuanceTTL() time.Duration {
	if c.App.IssuanceTTLSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.App.IssuanceTTLSeconds) * time.Second
}

// RedemptionTTL 返回核销请求的有效时长，协议默认 60 秒。
// 刻意设置得比发放更短，用于压缩奖励券被冒用的时间窗口。
func (c *Config) RedemptionTTL() time.Duration {
	if c.App.RedemptionTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.App.RedemptionTTLSeconds) * time.Second
}

var (
	currentConfig *Config
	configOnce    sync.Once
)

// Init 加载配置。必须在每个服务的 main 里最先调用。
func Init() {
	configOnce.Do(func() {
		cfg := defaultConfig()

		path := getEnv("CONFIG_FILE", "configs/config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			// 配置文件是可选的，解析失败时保留默认值
			_ = yaml.Unmarshal(data, cfg)
		}

		applyEnvOverrides(cfg)
		currentConfig = cfg
	})
}

// GetCurrentConfig 返回进程内的配置快照。
func GetCurrentConfig() *Config {
	if currentConfig == nil {
		Init()
	}
	return currentConfig
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.HTTPPort = 8080
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
}

// getEnv 从环境变量读取配置，缺省时返回 fallback。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
