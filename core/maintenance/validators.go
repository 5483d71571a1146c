package maintenance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/entrykart/core"
)

var (
	statusTag  = "mstatus"
	statusText = "status must be one of: Pending, Paid, Overdue"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).Valid()
}
