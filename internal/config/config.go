package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config 是唯一持久化的配置文件结构。
type Config struct {
	Backend Backend `toml:"backend"`
	History History `toml:"history"`
	Storage Storage `toml:"storage"`
	Log     Log     `toml:"log"`
	Source  string  `toml:"-"`
}

// Backend 选择默认的 provider 与执行模式。
type Backend struct {
	Provider        string `toml:"provider"`
	Model           string `toml:"model"`
	Mode            string `toml:"mode"`
	Thinking        string `toml:"thinking"`
	AnthropicURL    string `toml:"anthropic_url,omitempty"`
	AnthropicToken  string `toml:"anthropic_token,omitempty"`
	OpenAIURL       string `toml:"openai_url,omitempty"`
	OpenAIToken     string `toml:"openai_token,omitempty"`
	MaxOutputTokens int64  `toml:"max_output_tokens"`
	// ContextTokens 限制随请求发送的历史的估算 token 数，0 表示不限制。
	ContextTokens int `toml:"context_tokens"`
	// Instructions 为 false 时不加载 CHATLINE.md/AGENTS.md 项目说明。
	Instructions bool `toml:"instructions"`
	// MaxConcurrent 限制同时进行的回合数（跨会话），0 表示不限制。
	MaxConcurrent int `toml:"max_concurrent"`
}

// History 控制虚拟化历史窗口。
type History struct {
	WindowSize   int `toml:"window_size"`
	LoadStep     int `toml:"load_step"`
	Threshold    int `toml:"threshold"`
	ScrollBuffer int `toml:"scroll_buffer"`
}

type Storage struct {
	Driver string `toml:"driver"` // json | sqlite
	Dir    string `toml:"dir"`
}

type Log struct {
	Path   string `toml:"path"`
	EQPath string `toml:"eq_path"`
	Level  string `toml:"level"`
}

func Default() Config {
	return Config{
		Backend: Backend{
			Provider:        "echo",
			Model:           "claude-sonnet-4-5",
			Mode:            "build",
			Thinking:        "think",
			MaxOutputTokens: 8192,
			ContextTokens:   100000,
			Instructions:    true,
			MaxConcurrent:   4,
		},
		History: History{WindowSize: 50, LoadStep: 50, Threshold: 200, ScrollBuffer: 5},
		Storage: Storage{Driver: "json", Dir: DefaultDataDir()},
		Log:     Log{Path: "logs/chatline.log", EQPath: "logs/eq.log", Level: "info"},
	}
}

// DefaultDataDir 返回 ~/.chatline，$HOME 不可用时返回空串。
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".chatline")
}

func DefaultPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

// Load 读取配置；文件不存在时使用默认值。环境变量总是覆盖文件中的凭据。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err == nil {
		if err := toml.Unmarshal(content, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	for _, key := range []string{"ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN"} {
		if env := strings.TrimSpace(os.Getenv(key)); env != "" {
			cfg.Backend.AnthropicToken = env
		}
	}
	if env := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); env != "" {
		cfg.Backend.AnthropicURL = env
	}
	if env := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); env != "" {
		cfg.Backend.OpenAIToken = env
	}
	if env := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); env != "" {
		cfg.Backend.OpenAIURL = env
	}
}

// normalize 把非法的窗口参数拉回默认值。
func (c *Config) normalize() {
	def := Default()
	if c.History.WindowSize <= 0 {
		c.History.WindowSize = def.History.WindowSize
	}
	if c.History.LoadStep <= 0 {
		c.History.LoadStep = def.History.LoadStep
	}
	if c.History.Threshold < 0 {
		c.History.Threshold = def.History.Threshold
	}
	if c.History.ScrollBuffer < 0 {
		c.History.ScrollBuffer = def.History.ScrollBuffer
	}
	if c.Backend.ContextTokens < 0 {
		c.Backend.ContextTokens = 0
	}
	if c.Backend.MaxConcurrent < 0 {
		c.Backend.MaxConcurrent = 0
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = def.Storage.Dir
	}
}
