package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const masked = "***"

// configKind describes how a configuration value is parsed.
type configKind int

const (
	configString configKind = iota
	configSecret
	configBool
	configInt
	configFloat
	configDuration
)

// configKeys lists every persisted setting.
var configKeys = map[string]configKind{
	"url":           configString,
	"username":      configString,
	"password":      configSecret,
	"output":        configString,
	"no_color":      configBool,
	"timeout":       configDuration,
	"retry_max":     configInt,
	"retry_wait":    configDuration,
	"page_size":     configInt,
	"concurrency":   configInt,
	"rate_limit":    configFloat,
	"poll_interval": configDuration,
	"cache":         configString,
	"cache_ttl":     configDuration,
	"nats_url":      configString,
	"nats_bucket":   configString,
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Show and change the settings stored in the sapcom configuration file",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUnsetCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the effective configuration. Secrets are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := effectiveConfig()

			format, err := outputFormat()
			if err != nil {
				return err
			}

			switch format {
			case constants.FormatJSON:
				return writeJSON(cmd.OutOrStdout(), settings)
			case constants.FormatYAML:
				return writeYAML(cmd.OutOrStdout(), settings)
			}

			keys := make([]string, 0, len(settings))
			for key := range settings {
				keys = append(keys, key)
			}

			sort.Strings(keys)

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Key", "Value")

			for _, key := range keys {
				err := table.Append(key, fmt.Sprint(settings[key]))
				if err != nil {
					return fmt.Errorf("failed to append row to table: %w", err)
				}
			}

			err = table.Render()
			if err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}

			return nil
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Persist a configuration value to the configuration file",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			key, raw := args[0], args[1]

			value, err := parseConfigValue(key, raw)
			if err != nil {
				return err
			}

			stored, err := loadStoredConfig()
			if err != nil {
				return err
			}

			stored[key] = value

			err = saveStoredConfig(stored)
			if err != nil {
				return err
			}

			viper.Set(key, value)

			if configKeys[key] == configSecret {
				raw = masked
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, raw)

			return nil
		},
	}
}

func newConfigUnsetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unset KEY",
		Short: "Unset a configuration value",
		Long:  "Remove a configuration value from the configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if _, ok := configKeys[key]; !ok {
				return fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
			}

			stored, err := loadStoredConfig()
			if err != nil {
				return err
			}

			delete(stored, key)

			err = saveStoredConfig(stored)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", key)

			return nil
		},
	}
}

// effectiveConfig returns every known setting that has a value, with
// secrets masked.
func effectiveConfig() map[string]any {
	settings := make(map[string]any, len(configKeys))

	for key, kind := range configKeys {
		if !viper.IsSet(key) {
			continue
		}

		value := viper.Get(key)
		if kind == configSecret && viper.GetString(key) != "" {
			value = masked
		}

		settings[key] = value
	}

	return settings
}

func parseConfigValue(key, raw string) (any, error) {
	kind, ok := configKeys[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
	}

	var (
		value any
		err   error
	)

	switch kind {
	case configBool:
		value, err = strconv.ParseBool(raw)
	case configInt:
		value, err = strconv.Atoi(raw)
	case configFloat:
		value, err = strconv.ParseFloat(raw, 64)
	case configDuration:
		var duration time.Duration

		duration, err = time.ParseDuration(raw)
		value = duration.String()
	default:
		value = raw
	}

	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", constants.ErrInvalidConfigValue, key, err)
	}

	if key == "output" {
		switch raw {
		case constants.FormatTable, constants.FormatJSON, constants.FormatYAML:
		default:
			return nil, fmt.Errorf("%w: %s", constants.ErrUnknownOutput, raw)
		}
	}

	if key == "cache" {
		switch commissions.CacheType(raw) {
		case commissions.CacheTypeMemory, commissions.CacheTypeNATS, commissions.CacheTypeTiered, commissions.CacheTypeNone:
		default:
			return nil, fmt.Errorf("%w for cache: %s (memory, nats, tiered or none)", constants.ErrInvalidConfigValue, raw)
		}
	}

	return value, nil
}

// configFile returns the file in use, or the default location.
func configFile() (string, error) {
	file := viper.ConfigFileUsed()
	if file != "" {
		return file, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".sapcom", "config.yml"), nil
}

// loadStoredConfig reads the file contents only, so that flags and
// environment variables are never persisted.
func loadStoredConfig() (map[string]any, error) {
	file, err := configFile()
	if err != nil {
		return nil, err
	}

	stored := map[string]any{}

	// #nosec G304 -- the path comes from --config or the home directory.
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return stored, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(data, &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if stored == nil {
		stored = map[string]any{}
	}

	return stored, nil
}

func saveStoredConfig(stored map[string]any) error {
	file, err := configFile()
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(file), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(file, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func noColor() bool {
	return viper.GetBool("no_color")
}
