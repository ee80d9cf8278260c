package domain

import (
	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance used for struct validation
// of operation inputs.
var validate = validator.New(validator.WithRequiredStructEnabled())
