package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chanarr/chanarr/internal/config"
	"github.com/chanarr/chanarr/pkg/bytesize"
	"github.com/chanarr/chanarr/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing chanarr configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  chanarr config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, .chanarr.yaml, /etc/chanarr/config.yaml)
  - Environment variables (CHANARR_SERVER_PORT, CHANARR_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the CHANARR_ prefix and underscores for nesting.
Example: server.port -> CHANARR_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Get yaml tag or use lowercase field name
		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		// Handle different types
		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case int64:
			// Check if this looks like a byte size (field name contains "size")
			if contains(key, "size", "bytes") {
				result[key] = bytesize.Format(bytesize.Size(v))
			} else {
				result[key] = v
			}
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func contains(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i <= len(s)-len(sub); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Load config with defaults (no file, just defaults)
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Convert to map with human-readable values
	cfgMap := toMap(cfg)

	// Marshal to YAML
	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Print header with documentation
	fmt.Println("# chanarr Configuration File")
	fmt.Println("# ===========================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   CHANARR_SERVER_HOST, CHANARR_SERVER_PORT")
	fmt.Println("#   CHANARR_DATABASE_DRIVER, CHANARR_DATABASE_DSN")
	fmt.Println("#   CHANARR_STORAGE_BASE_DIR, CHANARR_STORAGE_OUTPUT_DIR")
	fmt.Println("#   CHANARR_LOGGING_LEVEL, CHANARR_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
