package staging

import (
	"github.com/aristath/backoffice/internal/apierr"
)

func validateCurrency(field, code string) error {
	if len(code) != 3 {
		return apierr.Invalid(field)
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return apierr.Invalid(field)
		}
	}
	return nil
}

func validatePositiveID(field string, id int64) error {
	if id <= 0 {
		return apierr.Invalid(field)
	}
	return nil
}
