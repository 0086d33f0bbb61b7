package config

import (
	"strconv"
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides.
// Keys use the TOML section path, e.g. backend.model or history.window_size.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	if len(overrides) == 0 {
		return cfg
	}
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "provider", "backend.provider":
			cfg.Backend.Provider = val
		case "model", "backend.model":
			cfg.Backend.Model = val
		case "mode", "backend.mode":
			cfg.Backend.Mode = val
		case "thinking", "backend.thinking":
			cfg.Backend.Thinking = val
		case "backend.context_tokens":
			setInt(&cfg.Backend.ContextTokens, val)
		case "backend.max_concurrent":
			setInt(&cfg.Backend.MaxConcurrent, val)
		case "backend.instructions":
			if b, err := strconv.ParseBool(val); err == nil {
				cfg.Backend.Instructions = b
			}
		case "history.window_size":
			setInt(&cfg.History.WindowSize, val)
		case "history.load_step":
			setInt(&cfg.History.LoadStep, val)
		case "history.threshold":
			setInt(&cfg.History.Threshold, val)
		case "history.scroll_buffer":
			setInt(&cfg.History.ScrollBuffer, val)
		case "storage.driver":
			cfg.Storage.Driver = val
		case "storage.dir":
			cfg.Storage.Dir = val
		case "log.level":
			cfg.Log.Level = val
		}
	}
	cfg.normalize()
	return cfg
}

func setInt(dst *int, raw string) {
	if n, err := strconv.Atoi(raw); err == nil {
		*dst = n
	}
}
