package achievement

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/podium/core"
)

var errInvalidCatalog = errors.New("invalid achievements catalog")

// IDParam is the achievement id of a route.
type IDParam struct {
	ID string `json:"id" validate:"required,slug"`
}

func validateDefinitions(defs []Definition, validate *validator.Validate, translator ut.Translator) error {
	var fieldErrs []core.FieldError
	seen := make(map[string]int, len(defs))

	for i, def := range defs {
		prefix := fmt.Sprintf("achievements[%d]", i)
		if err := validate.Struct(def); err != nil {
			verrs, ok := err.(validator.ValidationErrors)
			if !ok {
				return errors.Wrap(err, "validating catalog")
			}
			for _, fe := range verrs {
				fieldErrs = append(fieldErrs, core.FieldError{
					Field: prefix + "." + fe.Field(),
					Error: fe.Translate(translator),
				})
			}
		}
		if def.ID == "" {
			continue
		}
		if first, dup := seen[def.ID]; dup {
			fieldErrs = append(fieldErrs, core.FieldError{
				Field: prefix + ".id",
				Error: fmt.Sprintf("duplicate id %q (first declared at achievements[%d])", def.ID, first),
			})
			continue
		}
		seen[def.ID] = i
	}

	if len(fieldErrs) > 0 {
		return core.NewValidationError(errInvalidCatalog, fieldErrs...)
	}
	return nil
}
