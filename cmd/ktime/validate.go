package main

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/ktime/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load the ktime configuration the way the service would and report errors
and keys ktime does not recognise. With --dump, print every setting and mark
the ones that differ from the defaults.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Print the effective configuration, marking values changed from the defaults")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "invalid configuration %s: %v\n", configPath, err)
		return err
	}

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		color.New(color.FgYellow).Fprintf(os.Stderr, "could not scan %s for unknown keys: %v\n", configPath, err)
	}

	color.New(color.FgGreen).Fprintf(os.Stdout, "%s: OK\n", configPath)
	writeUnknownKeys(os.Stdout, unknownKeys)

	if validateDump {
		writeConfig(os.Stdout, configSections(cfg, config.Default()))
	}
	return nil
}

// findUnknownKeys returns the keys set in the config file that ktime ignores
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := config.ValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return unknown, nil
}

func writeUnknownKeys(w io.Writer, keys []string) {
	if len(keys) == 0 {
		return
	}
	red := color.New(color.FgRed, color.Bold)
	red.Fprintf(w, "\n%d unknown key(s), ignored:\n", len(keys))
	for _, key := range keys {
		red.Fprintf(w, "  %s\n", key)
	}
}

type configField struct {
	name     string
	value    interface{}
	fallback interface{}
}

// modified reports whether the field differs from its default
func (f configField) modified() bool {
	return !reflect.DeepEqual(f.value, f.fallback)
}

type configSection struct {
	name   string
	fields []configField
}

// configSections pairs every setting in cfg with its default.
func configSections(cfg, def *config.Config) []configSection {
	return []configSection{
		{"server", []configField{
			{"bind_address", cfg.Server.BindAddress, def.Server.BindAddress},
			{"api_port", cfg.Server.APIPort, def.Server.APIPort},
			{"metrics_port", cfg.Server.MetricsPort, def.Server.MetricsPort},
			{"allowed_origins", cfg.Server.AllowedOrigins, def.Server.AllowedOrigins},
		}},
		{"storage", []configField{
			{"type", cfg.Storage.Type, def.Storage.Type},
			{"path", cfg.Storage.Path, def.Storage.Path},
			{"cache_size", cfg.Storage.CacheSize, def.Storage.CacheSize},
		}},
		{"storage.redis", []configField{
			{"host", cfg.Storage.Redis.Host, def.Storage.Redis.Host},
			{"port", cfg.Storage.Redis.Port, def.Storage.Redis.Port},
			{"password", secret(cfg.Storage.Redis.Password), secret(def.Storage.Redis.Password)},
			{"db", cfg.Storage.Redis.DB, def.Storage.Redis.DB},
			{"pool_size", cfg.Storage.Redis.PoolSize, def.Storage.Redis.PoolSize},
			{"min_idle_conns", cfg.Storage.Redis.MinIdleConns, def.Storage.Redis.MinIdleConns},
			{"dial_timeout", cfg.Storage.Redis.DialTimeout, def.Storage.Redis.DialTimeout},
			{"read_timeout", cfg.Storage.Redis.ReadTimeout, def.Storage.Redis.ReadTimeout},
			{"write_timeout", cfg.Storage.Redis.WriteTimeout, def.Storage.Redis.WriteTimeout},
		}},
		{"logging", []configField{
			{"level", cfg.Logging.Level, def.Logging.Level},
			{"format", cfg.Logging.Format, def.Logging.Format},
		}},
		{"usage_tracking", []configField{
			{"poll_interval", cfg.Usage.PollInterval, def.Usage.PollInterval},
			{"retention_days", cfg.Usage.RetentionDays, def.Usage.RetentionDays},
			{"cleanup_time", cfg.Usage.CleanupTime, def.Usage.CleanupTime},
		}},
		{"policy", []configField{
			{"engine", cfg.Policy.Engine, def.Policy.Engine},
			{"opa_policy_dir", cfg.Policy.OPAPolicyDir, def.Policy.OPAPolicyDir},
		}},
	}
}

func writeConfig(w io.Writer, sections []configSection) {
	header := color.New(color.FgCyan, color.Bold)
	changed := color.New(color.FgYellow, color.Bold)
	unchanged := color.New(color.FgGreen)

	rule := strings.Repeat("-", 60)
	fmt.Fprintf(w, "\n%s\neffective configuration (* = changed from default)\n%s\n", rule, rule)

	for _, section := range sections {
		header.Fprintf(w, "\n[%s]\n", section.name)
		for _, f := range section.fields {
			if f.modified() {
				changed.Fprintf(w, "* %s = %v  (default %v)\n", f.name, f.value, f.fallback)
				continue
			}
			unchanged.Fprintf(w, "  %s = %v\n", f.name, f.value)
		}
	}
}

// secret hides a non-empty credential.
func secret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
