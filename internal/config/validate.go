package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidateAPI checks the API section before any network client is built from it.
func ValidateAPI(cfg APIConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid [api] section: %w", err)
	}
	return nil
}
