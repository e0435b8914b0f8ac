package validator

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate

	callIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
)

// ValidationError is a single rejected field, named as the client sent it.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

func (v ValidationError) String() string {
	switch v.Tag {
	case "required", "notblank":
		return v.Field + " is required"
	case "callid":
		return v.Field + " is not a valid call id"
	case "oneof":
		return v.Field + " must be one of: " + v.Param
	case "max":
		return v.Field + " is longer than " + v.Param
	case "email":
		return v.Field + " is not a valid email address"
	}
	if v.Param != "" {
		return v.Field + " failed on " + v.Tag + "=" + v.Param
	}
	return v.Field + " failed on " + v.Tag
}

// ValidationErrors is every rejected field of one payload.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, err := range v {
		parts[i] = err.String()
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct checks the `validate` tags of an inbound payload. Besides
// the stock rules it understands:
//
//	notblank  the string holds something other than whitespace
//	callid    the string looks like an id minted by the call queue
func ValidateStruct(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}

	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	failures := make(ValidationErrors, 0, len(ve))
	for _, fe := range ve {
		failures = append(failures, ValidationError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return failures
}

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)
		// Registration only fails for empty tags or nil funcs.
		_ = v.RegisterValidation("notblank", notBlank)
		_ = v.RegisterValidation("callid", callID)
		validate = v
	})
	return validate
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func callID(fl validator.FieldLevel) bool {
	return callIDPattern.MatchString(fl.Field().String())
}
