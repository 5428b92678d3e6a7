package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates all service configuration.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Panel  PanelConfig
	Debug  bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	panel, err := loadPanelConfig()
	if err != nil {
		return nil, err
	}

	debug, err := parseBoolEnv("APP_DEBUG", false)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Panel: panel, Debug: debug}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the completion model.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	CallTimeout time.Duration
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL or the AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	callTimeout := 30 * time.Second
	if override, err := parseOptionalIntEnv("AI_CALL_TIMEOUT_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("AI_CALL_TIMEOUT_SECONDS must be positive, got %d", *override)
		}
		callTimeout = time.Duration(*override) * time.Second
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		CallTimeout: callTimeout,
	}, nil
}

// PanelConfig tunes the discussion engine.
type PanelConfig struct {
	PersonasPath      string
	ConfigsPath       string
	SummaryThreshold  int
	MaxPriorExchanges int
	TokenBudget       int
	SessionTTL        time.Duration
}

func loadPanelConfig() (PanelConfig, error) {
	cfg := PanelConfig{
		PersonasPath:      getEnvOrDefault("PERSONAS_CONFIG", "config/personas.json"),
		ConfigsPath:       getEnvOrDefault("PANEL_CONFIG", "config/panel_configs.json"),
		SummaryThreshold:  3,
		MaxPriorExchanges: 3,
		TokenBudget:       4096,
		SessionTTL:        30 * time.Minute,
	}

	if override, err := parseOptionalIntEnv("PANEL_SUMMARY_THRESHOLD"); err != nil {
		return PanelConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return PanelConfig{}, fmt.Errorf("PANEL_SUMMARY_THRESHOLD must be positive, got %d", *override)
		}
		cfg.SummaryThreshold = *override
	}

	if override, err := parseOptionalIntEnv("PANEL_MAX_PRIOR_EXCHANGES"); err != nil {
		return PanelConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return PanelConfig{}, fmt.Errorf("PANEL_MAX_PRIOR_EXCHANGES must not be negative, got %d", *override)
		}
		cfg.MaxPriorExchanges = *override
	}

	if override, err := parseOptionalIntEnv("PANEL_TOKEN_BUDGET"); err != nil {
		return PanelConfig{}, err
	} else if override != nil {
		if *override < 256 {
			return PanelConfig{}, fmt.Errorf("PANEL_TOKEN_BUDGET too small: %d", *override)
		}
		cfg.TokenBudget = *override
	}

	if override, err := parseOptionalIntEnv("PANEL_SESSION_TTL_SECONDS"); err != nil {
		return PanelConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return PanelConfig{}, fmt.Errorf("PANEL_SESSION_TTL_SECONDS must be positive, got %d", *override)
		}
		cfg.SessionTTL = time.Duration(*override) * time.Second
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
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
