// Package shared holds the setup common to the app binaries.
package shared

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
)

// NewValidation returns a validator with every app validation registered, and its english translator.
func NewValidation() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	access.InitValidators(validate, translator)
	maintenance.InitValidators(validate, translator)
	return validate, translator
}
