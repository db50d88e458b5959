package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// envVarPattern matches ${VAR} and ${VAR:-default} references inside
// scalar YAML values (spec §4.A).
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ResolvePath decides which file to load: an explicit path wins, then
// GATEWAY_CONFIG_PATH, then the default working-directory file.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return ExpandHome(explicit)
	}
	if p := os.Getenv("GATEWAY_CONFIG_PATH"); p != "" {
		return ExpandHome(p)
	}
	return defaultConfigPath
}

// Load reads and parses the YAML configuration at path, substituting
// ${VAR} environment references before decoding, and layering a small set
// of direct env overrides on top (spec §6). A missing file is not an
// error: it falls back to Default() plus env overrides, matching the
// teacher's Load() fallback behavior.
func Load(path string) (*Config, error) {
	resolved := ResolvePath(path)

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", resolved, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", resolved, err)
	}
	substituted := substituteEnv(raw)

	merged, err := yaml.Marshal(substituted)
	if err != nil {
		return nil, fmt.Errorf("re-marshal config %s: %w", resolved, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(merged, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", resolved, err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", resolved, err)
	}
	return cfg, nil
}

// substituteEnv walks a decoded YAML value replacing ${VAR} and
// ${VAR:-default} references in every string it finds.
func substituteEnv(node interface{}) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = substituteEnv(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = substituteEnv(val)
		}
		return out
	case string:
		return expandEnvString(v)
	default:
		return v
	}
}

func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, fallback := groups[1], groups[3]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return fallback
	})
}

// applyEnvOverrides layers the handful of env vars the gateway honors
// directly over a parsed config, mirroring the teacher's envStr closure
// idiom for the fields operators most often override without editing
// the file.
func applyEnvOverrides(cfg *Config) {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			var parsed int
			if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
				*dst = parsed
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "1" || strings.EqualFold(v, "true")
		}
	}

	envStr("GATEWAY_HOST", &cfg.Gateway.Host)
	envInt("GATEWAY_PORT", &cfg.Gateway.Port)
	envStr("GATEWAY_AUTH_TOKEN", &cfg.Gateway.Auth.Token)
	envBool("GATEWAY_VERBOSE", &cfg.Gateway.Verbose)
	envBool("GATEWAY_HOT_RELOAD", &cfg.Gateway.HotReload)
}

// Save writes cfg back to path as YAML with owner-only permissions.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Hash returns a short content hash, used to detect no-op reloads
// without comparing the full struct field by field.
func (c *Config) Hash() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("hash config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

// ExpandHome expands a leading ~ into the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
