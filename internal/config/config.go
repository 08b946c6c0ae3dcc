package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/aero-pet/companion/internal/provider/einoext"
	"github.com/aero-pet/companion/internal/provider/groq"
)

// AI_PROVIDER 可选的提供方名称。
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

const (
	defaultChatModel       = "meta-llama/llama-4-scout-17b-16e-instruct"
	defaultClassifierModel = "llama3-8b-8192"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Log     LogConfig
	Persona PersonaConfig
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

	return &Config{
		Server:  server,
		AI:      ai,
		Log:     loadLogConfig(),
		Persona: PersonaConfig{File: strings.TrimSpace(os.Getenv("PERSONA_FILE"))},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr          string
	AllowedOrigin string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origin := getEnvOrDefault("ALLOWED_ORIGIN", "*")

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigin: origin}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigin: origin}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider        string
	APIKey          string
	BaseURL         string
	Region          string
	ChatModel       string
	ClassifierModel string
}

// HasCredential 返回是否配置了上游 API Key。
func (c AIConfig) HasCredential() bool {
	return c.APIKey != ""
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	switch c.Provider {
	case ProviderGroq:
		return groq.NewChatModel(&groq.Config{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.ChatModel,
		})
	case ProviderOpenAI:
		cm, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.ChatModel,
		})
		if err != nil {
			return nil, err
		}
		return einoext.WrapOpenAI(cm), nil
	case ProviderArk:
		cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL: c.BaseURL,
			Region:  c.Region,
			APIKey:  c.APIKey,
			Model:   c.ChatModel,
		})
		if err != nil {
			return nil, err
		}
		return einoext.WrapArk(cm), nil
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", c.Provider)
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGroq))

	cfg := AIConfig{
		Provider:        provider,
		BaseURL:         strings.TrimSpace(os.Getenv("AI_BASE_URL")),
		ChatModel:       getEnvOrDefault("AI_CHAT_MODEL", defaultChatModel),
		ClassifierModel: getEnvOrDefault("AI_CLASSIFIER_MODEL", defaultClassifierModel),
	}

	switch provider {
	case ProviderGroq:
		cfg.APIKey = strings.TrimSpace(os.Getenv("GROQ_API_KEY"))
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://ark.cn-beijing.volces.com/api/v3"
		}
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	return cfg, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
	File   string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
		File:   strings.TrimSpace(os.Getenv("LOG_FILE")),
	}
}

// PersonaConfig 指向可选的 persona 覆盖文件。
type PersonaConfig struct {
	File string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
