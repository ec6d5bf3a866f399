package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from environment variables, falling back to
// keys in the YAML file at path for anything the environment leaves unset.
// Keys in the file are the lowercased env names (database_url, log_level, ...).
// An empty path or a missing file is not an error.
func LoadFile(path string) (*Config, error) {
	file, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookupFunc(file)); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// readConfigFile loads the optional YAML file. Returns nil when path is empty
// or the file does not exist.
func readConfigFile(path string) (*viper.Viper, error) {
	if path == "" {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// lookupFunc resolves a single env name. The environment wins over the file.
func lookupFunc(file *viper.Viper) func(name string) string {
	return func(name string) string {
		if value := os.Getenv(name); value != "" {
			return value
		}
		if file == nil {
			return ""
		}
		key := strings.ToLower(name)
		if !file.IsSet(key) {
			return ""
		}
		if list, ok := file.Get(key).([]any); ok {
			parts := make([]string, 0, len(list))
			for _, item := range list {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, ",")
		}
		return file.GetString(key)
	}
}

// loadStruct recursively populates struct fields from the lookup source.
func loadStruct(v reflect.Value, lookup func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary name, then alternate
		value := lookup(envName)
		if value == "" && envAlt != "" {
			value = lookup(envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

var validRunTypes = map[string]bool{"Scheduled": true, "Manual": true, "OnDemand": true}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	// The validator holds one connection for its lifetime, ingestion needs another.
	if c.Database.MaxConns < 2 {
		errs = append(errs, "DB_MAX_CONNS must be at least 2")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Source validation
	if strings.TrimSpace(c.Source.DataDir) == "" {
		errs = append(errs, "DATA_SOURCE_PATH must not be empty")
	}

	// Validation settings
	if !validRunTypes[c.Validation.RunType] {
		errs = append(errs, fmt.Sprintf("VALIDATION_RUN_TYPE (%q) must be one of: Scheduled, Manual, OnDemand", c.Validation.RunType))
	}
	if c.Validation.FailureLimit <= 0 {
		errs = append(errs, "VALIDATION_FAILURE_LIMIT must be positive")
	}
	if c.Validation.SummaryWindow <= 0 {
		errs = append(errs, "VALIDATION_SUMMARY_WINDOW must be positive")
	}
	if c.Validation.SummaryLimit <= 0 {
		errs = append(errs, "VALIDATION_SUMMARY_LIMIT must be positive")
	}

	// Alert validation
	if c.Alert.Enabled {
		if c.Alert.From == "" {
			errs = append(errs, "EMAIL_FROM is required when EMAIL_ENABLED is true")
		}
		if len(c.Alert.To) == 0 {
			errs = append(errs, "EMAIL_TO is required when EMAIL_ENABLED is true")
		}
		if c.Alert.SMTPPort <= 0 || c.Alert.SMTPPort > 65535 {
			errs = append(errs, fmt.Sprintf("EMAIL_SMTP_PORT (%d) must be 1-65535", c.Alert.SMTPPort))
		}
	}
	if c.Alert.FailureThreshold < 0 || c.Alert.WarningThreshold < 0 {
		errs = append(errs, "alert thresholds must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		errs = append(errs, "LOG_MAX_SIZE_MB must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and SMTP passwords are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Source: {DataDir: %q}, ", c.Source.DataDir))
	b.WriteString(fmt.Sprintf("Validation: {RunType: %q, FailureLimit: %d}, ",
		c.Validation.RunType, c.Validation.FailureLimit))
	b.WriteString(fmt.Sprintf("Alert: {Enabled: %v, SMTPHost: %q, Password: [MASKED]}, ",
		c.Alert.Enabled, c.Alert.SMTPHost))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q, File: %q}",
		c.Logging.Level, c.Logging.Format, c.Logging.File))
	b.WriteString("}")
	return b.String()
}
