package form

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/conversion"
	"github.com/ArionMiles/dispatchcost/pkg/currency"
)

// ValidationError reports an invalid form field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// fields is the validated subset of the form.
type fields struct {
	Item string `validate:"required"`
}

var fieldMessages = map[string]string{
	"Item": "Item is required",
}

// Formatter turns an engine state into the persisted record shape.
type Formatter struct {
	validate *validator.Validate
}

// NewFormatter creates a Formatter.
func NewFormatter() *Formatter {
	return &Formatter{validate: validator.New()}
}

// Build validates s and renders it. Paying_In and Cost are "<symbol> <amount>" strings; the target
// amount always has two decimals. A currency missing from the table is a currency.ErrUnknownCurrency.
func (f *Formatter) Build(s conversion.State) (api.Payload, error) {
	if err := f.validate.Struct(fields{Item: s.Item}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0].Field()
			return api.Payload{}, &ValidationError{Field: field, Message: fieldMessages[field]}
		}
		return api.Payload{}, fmt.Errorf("validating form: %w", err)
	}

	payingIn, err := currency.Display(s.SourceCurrency, s.Amount, -1)
	if err != nil {
		return api.Payload{}, fmt.Errorf("paying in: %w", err)
	}
	cost, err := currency.Display(s.TargetCurrency, s.TargetAmount, 2)
	if err != nil {
		return api.Payload{}, fmt.Errorf("cost: %w", err)
	}

	return api.Payload{
		Item:              s.Item,
		PayingIn:          payingIn,
		Cost:              cost,
		BaseCurrency:      s.SourceCurrency,
		ConvertedCurrency: s.TargetCurrency,
		ApprovalStatus:    api.ApprovalPending,
	}, nil
}
