package forms

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"useradmin/internal/models"
)

// NonFieldErrors is the key for errors not tied to one field.
const NonFieldErrors = "__all__"

// Errors maps a form field name to its messages.
type Errors map[string][]string

func (e Errors) Add(field, msg string) { e[field] = append(e[field], msg) }

func (e Errors) Get(field string) []string { return e[field] }

func (e Errors) Any() bool { return len(e) > 0 }

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

var usernameRe = regexp.MustCompile(`^[\w.@+-]+$`)

var registerOnce sync.Once

// RegisterValidators hooks the custom rules into gin's validator and makes
// FieldError.Field() report form names. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernameRe.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
			return len(fl.Field().String()) <= MaxPasswordBytes
		})
		_ = v.RegisterValidation("profilerole", func(fl validator.FieldLevel) bool {
			return models.ProfileRole(fl.Field().String()).Valid()
		})
	})
}

// FromBinding converts a binding or validation error into form errors.
func FromBinding(err error) Errors {
	out := Errors{}
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out.Add(NonFieldErrors, "The submitted data could not be read.")
		return out
	}
	for _, fe := range verrs {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Ensure this value has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	case "bcryptlen":
		return fmt.Sprintf("Ensure this value has at most %d bytes.", MaxPasswordBytes)
	case "profilerole":
		return fmt.Sprintf("Select a valid choice. %v is not one of the available choices.", fe.Value())
	default:
		return fmt.Sprintf("Invalid value (%s).", fe.Tag())
	}
}
