package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var configValidator *validator.Validate

// V returns the shared validator for configuration structs.
func V() *validator.Validate {
	if configValidator == nil {
		configValidator = validator.New(validator.WithRequiredStructEnabled())
	}
	return configValidator
}

// durationValidator checks if the given value parses as a config duration.
func durationValidator(fl validator.FieldLevel) bool {
	_, err := ParseDuration(fl.Field().String())
	return err == nil
}

func init() {
	V().RegisterValidation("duration", durationValidator)
}

// ValidateConfig checks if all required configuration values are present and valid
func ValidateConfig(cfg *Config) error {
	if err := validateConfigFormatVersion(cfg); err != nil {
		return err
	}
	if err := V().Struct(cfg); err != nil {
		return err
	}
	if err := validateObjectStoreConfig(cfg); err != nil {
		return err
	}
	return nil
}

func validateConfigFormatVersion(cfg *Config) error {
	if cfg.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}
	return nil
}

func validateObjectStoreConfig(cfg *Config) error {
	// The rejected prefix must not shadow the inbox prefix or quarantined
	// objects would be picked up again on the next poll.
	if cfg.ObjectStore.RejectedPrefix == cfg.ObjectStore.InboxPrefix {
		return fmt.Errorf("objectstore.rejected_prefix must differ from objectstore.inbox_prefix")
	}
	return nil
}
