package httpserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// validateBody runs struct tag validation on a decoded request body. On
// failure it returns a field->tag details map alongside an invalid-argument
// error; domain-level rules still run in the usecases.
func validateBody(req any) (map[string]string, error) {
	err := getValidator().Struct(req)
	if err == nil {
		return nil, nil
	}
	details := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			details[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return details, fmt.Errorf("validation failed: %w", domain.ErrInvalidArgument)
}
