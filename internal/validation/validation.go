// Package validation checks generation requests before any prompt is built.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/pavelanni/teachmate/internal/model"
)

const requiredText = "is required"

// FieldError describes one offending request field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists the missing, empty or out-of-range fields of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return "invalid input: " + strings.Join(e.FieldNames(), ", ")
}

// FieldNames returns the offending field names in declaration order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

// Validator wraps a configured go-playground validator and its translator.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New creates a Validator with the request tags registered.
func New() *Validator {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v := &Validator{validate: validate, translator: translator}

	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	v.registerTranslation("notblank", requiredText)

	v.registerChoice("class_duration", model.ClassDurations)
	v.registerChoice("student_level", model.StudentLevels)
	v.registerChoice("question_type", model.QuestionTypes)
	v.registerChoice("bloom_level", model.BloomLevels)
	v.registerChoice("resource_format", model.ResourceFormats)
	v.registerChoice("profile_role", model.ProfileRoles[1:])
	return v
}

// Check validates req and returns a *ValidationError when any field is invalid.
func (v *Validator) Check(req model.Request) error {
	if req == nil {
		return &ValidationError{Fields: []FieldError{{Field: "request", Message: "request " + requiredText}}}
	}
	return v.check(req, string(req.Kind())+" request")
}

// CheckProfile validates the editable fields of a user profile.
func (v *Validator) CheckProfile(p model.UserProfile) error {
	return v.check(p, "profile")
}

func (v *Validator) check(s any, what string) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %s: %w", what, err)
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, FieldError{
			Field:   fe.Field(),
			Message: fe.Translate(v.translator),
		})
	}
	return verr
}

func (v *Validator) registerChoice(tag string, allowed []string) {
	_ = v.validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return slices.Contains(allowed, fl.Field().String())
	})
	v.registerTranslation(tag, "must be one of: "+strings.Join(allowed, ", "))
}

// registerTranslation registers a custom message for the specified validation tag.
func (v *Validator) registerTranslation(tag, text string) {
	_ = v.validate.RegisterTranslation(
		tag, v.translator,
		func(t ut.Translator) error { return t.Add(tag, "{0} "+text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}
