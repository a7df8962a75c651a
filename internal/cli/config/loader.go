package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LEAPBENCH_"

// loggerKey is used to store the logger in a command context.
type loggerKey struct{}

// configKey is used to store the loaded config in a command context.
type configKey struct{}

var configFileNames = []string{"leapbench.yaml", "leapbench.yml"}

// flagKeys maps flag names whose config key differs from the snake_case form.
var flagKeys = map[string]string{
	"state":                "state_path",
	"questions":            "questions_path",
	"budget":               "budget_usd",
	"baseline-predictions": "predictions.baseline",
	"enhanced-predictions": "predictions.enhanced",
	"max-conns":            "pool.max_conns",
	"min-conns":            "pool.min_conns",
	"timeout":              "statement_timeout",
}

// nestedEnvPrefixes turn LEAPBENCH_POOL_MAX_CONNS into pool.max_conns.
var nestedEnvPrefixes = []string{"pool_", "predictions_"}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// findConfigFile finds the config file to use.
// Priority: explicit path > leapbench.yaml > leapbench.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func defaults() map[string]any {
	return map[string]any{
		"state_path":            DefaultStateFile,
		"questions_path":        DefaultQuestionsPath,
		"budget_usd":            DefaultBudgetUSD,
		"pool.min_conns":        DefaultMinConns,
		"pool.max_conns":        DefaultMaxConns,
		"statement_timeout":     DefaultStatementTimeout.String(),
		"cancel_check_interval": DefaultCancelCheckInterval,
		"verbose":               false,
		"output":                DefaultOutput,
	}
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, p := range nestedEnvPrefixes {
		if strings.HasPrefix(key, p) {
			return strings.TrimSuffix(p, "_") + "." + strings.TrimPrefix(key, p)
		}
	}
	return key
}

func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

// Load loads configuration from defaults, the config file, environment
// variables and flags. Only flags that were set explicitly override other
// sources. The returned Config is validated.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.DatabaseURL = expandEnvVars(cfg.DatabaseURL)
	if used != "" {
		anchorPaths(&cfg, filepath.Dir(used), flags)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, used, nil
}

// anchorPaths resolves relative paths that did not come from flags against
// the directory holding the config file. Flag paths stay relative to the
// working directory.
func anchorPaths(cfg *Config, base string, flags *pflag.FlagSet) {
	fromFlag := func(name string) bool {
		if flags == nil {
			return false
		}
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}
	for name, p := range map[string]*string{
		"state":                &cfg.StatePath,
		"questions":            &cfg.QuestionsPath,
		"baseline-predictions": &cfg.Predictions.Baseline,
		"enhanced-predictions": &cfg.Predictions.Enhanced,
	} {
		if !fromFlag(name) {
			*p = resolvePathRelativeTo(*p, base)
		}
	}
}

func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// expandEnvVars expands ${VAR} patterns. Unset variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// Default returns the configuration used when nothing was loaded.
func Default() *Config {
	return &Config{
		StatePath:           DefaultStateFile,
		QuestionsPath:       DefaultQuestionsPath,
		BudgetUSD:           DefaultBudgetUSD,
		Pool:                PoolConfig{MinConns: DefaultMinConns, MaxConns: DefaultMaxConns},
		StatementTimeout:    DefaultStatementTimeout,
		CancelCheckInterval: DefaultCancelCheckInterval,
		OutputFormat:        DefaultOutput,
	}
}

// WithConfig returns a copy of ctx carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config stored by WithConfig, or Default.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return Default()
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the CLI logger: text to w, debug level when verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
