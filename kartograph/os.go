package kartograph

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ErrNotPointer is returned when SetConfigFromEnvVars receives anything but
// a non-nil struct pointer.
var ErrNotPointer = errors.New("config destination must be a non-nil struct pointer")

// GetenvOrDefault returns the value of the environment variable key, or
// fallback when the variable is unset or blank.
func GetenvOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}

	return value
}

// GetenvBoolOrDefault returns the environment variable key parsed as a bool,
// or fallback when the variable is unset, blank, or unparsable.
func GetenvBoolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return value
}

// GetenvIntOrDefault returns the environment variable key parsed as an
// int64, or fallback when the variable is unset, blank, or unparsable.
func GetenvIntOrDefault(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return value
}

// SetConfigFromEnvVars fills the struct pointed to by dest from the
// environment variables named in `env:"..."` field tags. Untagged fields and
// unset or blank variables keep their current values, so callers can seed
// defaults before loading. Supported field types are string, bool, the
// signed integers, and time.Duration; a variable that fails to parse for its
// field type is an error rather than a silent fallback.
func SetConfigFromEnvVars(dest any) error {
	value := reflect.ValueOf(dest)
	if value.Kind() != reflect.Pointer || value.IsNil() || value.Elem().Kind() != reflect.Struct {
		return ErrNotPointer
	}

	structValue := value.Elem()
	structType := structValue.Type()

	for i := 0; i < structType.NumField(); i++ {
		key := structType.Field(i).Tag.Get("env")
		if key == "" || !structValue.Field(i).CanSet() {
			continue
		}

		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}

		if err := setFieldFromString(structValue.Field(i), raw); err != nil {
			return fmt.Errorf("environment variable %s: %w", key, err)
		}
	}

	return nil
}

func setFieldFromString(field reflect.Value, raw string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		duration, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing duration: %w", err)
		}

		field.SetInt(int64(duration))

		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parsing bool: %w", err)
		}

		field.SetBool(parsed)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing integer: %w", err)
		}

		if field.OverflowInt(parsed) {
			return fmt.Errorf("value %d overflows %s", parsed, field.Type())
		}

		field.SetInt(parsed)
	default:
		return fmt.Errorf("unsupported config field type %s", field.Type())
	}

	return nil
}
