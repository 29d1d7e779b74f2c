package validator

import (
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/cds-engine/internal/model"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
}

type validator struct {
	v *playground.Validate
}

// New returns a validator that knows the CDS enum tags.
func New() Validator {
	v := playground.New()
	// Registration only fails for empty tags or nil funcs.
	if err := Register(v); err != nil {
		panic(err)
	}
	return &validator{v: v}
}

// Register installs the CDS tags on an existing engine, e.g. gin's binding validator.
func Register(v *playground.Validate) error {
	tags := map[string]playground.Func{
		"cds_priority": func(fl playground.FieldLevel) bool {
			return model.Priority(fl.Field().String()).Valid()
		},
		"cds_severity": func(fl playground.FieldLevel) bool {
			return model.Severity(fl.Field().String()).Valid()
		},
		"cds_condition_type": func(fl playground.FieldLevel) bool {
			return model.ConditionType(fl.Field().String()).Valid()
		},
		"cds_operator": func(fl playground.FieldLevel) bool {
			return model.Operator(fl.Field().String()).Valid()
		},
	}
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return nil
}

func (v *validator) Validate(obj interface{}) error {
	err := v.v.Struct(obj)
	if err == nil {
		return nil
	}

	errs, ok := err.(playground.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
