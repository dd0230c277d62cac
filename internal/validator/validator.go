package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"bettabuckz/internal/payments/bitcoin"

	"github.com/btcsuite/btcd/chaincfg"
	playground "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ValidationError lists failed fields by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

type Validator struct {
	validate *playground.Validate
}

// New builds a validator with the custom tags used by request bodies:
// btcaddr (checksummed address for net) and dpos (positive decimal).
func New(net *chaincfg.Params) *Validator {
	v := playground.New(playground.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("btcaddr", func(fl playground.FieldLevel) bool {
		_, err := bitcoin.ValidateAddress(fl.Field().String(), net)
		return err == nil
	})
	_ = v.RegisterValidation("dpos", func(fl playground.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	return &Validator{validate: v}
}

// Struct validates s and returns a *ValidationError for rule failures.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "btcaddr":
		return "must be a valid bitcoin address"
	case "dpos", "gt":
		return "must be positive"
	case "nefield":
		return "must differ from " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	}
	return fmt.Sprintf("failed %q", fe.Tag())
}
