// Package config loads runner configuration from the workspace: an
// optional .vitebridge.yaml, an optional .env file, and VITEBRIDGE_*
// environment overrides, in that order of precedence (env wins).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up in the workspace root.
const ConfigFileName = ".vitebridge.yaml"

type Config struct {
	// Executable is the external runner binary or launcher command.
	Executable string `yaml:"executable"`

	// ExtraArgs is a raw argument string split on whitespace and
	// appended to batch invocations only.
	ExtraArgs string `yaml:"extraArgs"`

	// Env is merged into the spawned process environment.
	Env map[string]string `yaml:"env"`

	// APIPort is the reporting-channel port used in watch mode.
	APIPort int `yaml:"apiPort"`

	// DebugPort is the inspector port used by the default debugger.
	DebugPort int `yaml:"debugPort"`
}

func defaultConfig() Config {
	return Config{
		Executable: "npx vitest",
		APIPort:    51204,
		DebugPort:  9229,
	}
}

// Load reads configuration for the given workspace root. A missing or
// unreadable config file falls back to defaults; a partial file is
// merged over them.
func Load(root string) Config {
	cfg := defaultConfig()

	if data, err := os.ReadFile(filepath.Join(root, ConfigFileName)); err == nil {
		var fileCfg Config
		if yaml.Unmarshal(data, &fileCfg) == nil {
			if fileCfg.Executable != "" {
				cfg.Executable = fileCfg.Executable
			}
			if fileCfg.ExtraArgs != "" {
				cfg.ExtraArgs = fileCfg.ExtraArgs
			}
			if fileCfg.APIPort != 0 {
				cfg.APIPort = fileCfg.APIPort
			}
			if fileCfg.DebugPort != 0 {
				cfg.DebugPort = fileCfg.DebugPort
			}
			if len(fileCfg.Env) > 0 {
				cfg.Env = fileCfg.Env
			}
		}
	}

	// .env contributes to the spawned process environment, not ours.
	if pairs, err := godotenv.Read(filepath.Join(root, ".env")); err == nil {
		if cfg.Env == nil {
			cfg.Env = make(map[string]string, len(pairs))
		}
		for k, v := range pairs {
			if _, set := cfg.Env[k]; !set {
				cfg.Env[k] = v
			}
		}
	}

	if v := os.Getenv("VITEBRIDGE_EXECUTABLE"); v != "" {
		cfg.Executable = v
	}
	if v := os.Getenv("VITEBRIDGE_EXTRA_ARGS"); v != "" {
		cfg.ExtraArgs = v
	}
	if v := os.Getenv("VITEBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = port
		}
	}

	return cfg
}

// Command splits the executable setting into argv form. Executables like
// "npx vitest" carry their launcher with them.
func (c Config) Command() (string, []string) {
	parts := strings.Fields(c.Executable)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

// SplitExtraArgs splits the raw extra-args string on whitespace.
func (c Config) SplitExtraArgs() []string {
	return strings.Fields(c.ExtraArgs)
}

// Environ returns the ambient environment with the configured overrides
// applied, ready for exec.Cmd.Env.
func (c Config) Environ() []string {
	env := os.Environ()
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	return env
}
