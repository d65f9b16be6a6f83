package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Chat   ChatConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Chat: chat, Log: logCfg}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。温度与最大 token 数按角色在每次请求时下发。
type AIConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
	TopP      *float64
	Timeout   *time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	// 重试由调用方决定，这里关闭 SDK 自带的重试。
	retryTimes := 0
	cfg := &ark.ChatModelConfig{
		BaseURL:    c.BaseURL,
		Region:     c.Region,
		APIKey:     c.APIKey,
		AccessKey:  c.AccessKey,
		SecretKey:  c.SecretKey,
		Model:      c.Model,
		TopP:       topP,
		Timeout:    c.Timeout,
		RetryTimes: &retryTimes,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseOptionalDurationEnv("ARK_TIMEOUT")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:     strings.TrimSpace(os.Getenv("Model")),
		BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		TopP:      topP,
		Timeout:   timeout,
	}, nil
}

// ResetPolicy 决定达到轮次上限的那条用户消息如何处理。
type ResetPolicy string

const (
	// ResetDiscard 立即重置会话，最后一条消息不会得到回复。
	ResetDiscard ResetPolicy = "discard"
	// ResetAnswer 先回复最后一条消息，再重置会话。
	ResetAnswer ResetPolicy = "answer"
)

// ChatConfig 描述会话相关配置。
type ChatConfig struct {
	TurnLimit      int
	ResetPolicy    ResetPolicy
	SessionTTL     time.Duration
	DefaultPersona string
}

func loadChatConfig() (ChatConfig, error) {
	turnLimit := 8
	if override, err := parseOptionalIntEnv("SOULS_TURN_LIMIT"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ChatConfig{}, fmt.Errorf("invalid SOULS_TURN_LIMIT value %d: must be positive", *override)
		}
		turnLimit = *override
	}

	policy := ResetPolicy(strings.ToLower(getEnvOrDefault("SOULS_RESET_POLICY", string(ResetDiscard))))
	switch policy {
	case ResetDiscard, ResetAnswer:
	default:
		return ChatConfig{}, fmt.Errorf("invalid SOULS_RESET_POLICY value %q", policy)
	}

	ttl := 2 * time.Hour
	if override, err := parseOptionalDurationEnv("SOULS_SESSION_TTL"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		ttl = *override
	}

	return ChatConfig{
		TurnLimit:      turnLimit,
		ResetPolicy:    policy,
		SessionTTL:     ttl,
		DefaultPersona: strings.TrimSpace(os.Getenv("SOULS_DEFAULT_PERSONA")),
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level   zerolog.Level
	Console bool
}

func loadLogConfig() (LogConfig, error) {
	level := zerolog.InfoLevel
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(raw))
		if err != nil {
			return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value %q: %w", raw, err)
		}
		level = parsed
	}

	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
	if format != "json" && format != "console" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}

	return LogConfig{Level: level, Console: format == "console"}, nil
}

// NewLogger 按配置构造根日志器，console 格式用于本地开发。
func (c LogConfig) NewLogger(w io.Writer) zerolog.Logger {
	if c.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(c.Level).With().Timestamp().Logger()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseOptionalDurationEnv 支持 "30s" 形式，纯数字按秒处理。
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return nil, fmt.Errorf("invalid %s value %q: must be positive", key, value)
		}
		d := time.Duration(secs) * time.Second
		return &d, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("invalid %s value %q: must be positive", key, value)
	}
	return &d, nil
}
