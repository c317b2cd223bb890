package config

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInst = validator.New()
	})
	return validatorInst
}

// Validate checks an EngineConfig against its struct tags.
func Validate(cfg *EngineConfig) error {
	return getValidator().Struct(cfg)
}
