package core

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

var (
	// custom validation tags & texts
	weekdayTag  = "weekday"
	weekdayText = "must be one of Mon, Tue, Wed, Thu, Fri, Sat, Sun"

	slotTimeTag  = "slottime"
	slotTimeText = "must be an hourly slot between 09:00 and 17:00"
	slotTimeRgx  = regexp.MustCompile(`^(09|1[0-7]):00$`)

	yearMonthTag  = "yearmonth"
	yearMonthText = "must be a month formatted as YYYY-MM"

	isoDateTag  = "isodate"
	isoDateText = "must be a date formatted as YYYY-MM-DD"

	attStatusTag  = "attstatus"
	attStatusText = "must be either Present or Absent"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"

	weekdays = map[string]bool{"Mon": true, "Tue": true, "Wed": true, "Thu": true, "Fri": true, "Sat": true, "Sun": true}
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(weekdayTag, weekdayValidation)
	RegisterCustomTranslation(validate, translator, weekdayTag, weekdayText)

	_ = validate.RegisterValidation(slotTimeTag, slotTimeValidation)
	RegisterCustomTranslation(validate, translator, slotTimeTag, slotTimeText)

	_ = validate.RegisterValidation(yearMonthTag, layoutValidation(MonthLayout))
	RegisterCustomTranslation(validate, translator, yearMonthTag, yearMonthText)

	_ = validate.RegisterValidation(isoDateTag, layoutValidation(DateLayout))
	RegisterCustomTranslation(validate, translator, isoDateTag, isoDateText)

	_ = validate.RegisterValidation(attStatusTag, attStatusValidation)
	RegisterCustomTranslation(validate, translator, attStatusTag, attStatusText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// NewValidator returns a validator with every custom tag registered, for packages that validate outside of HTTP.
func NewValidator() *validator.Validate {
	validate := validator.New()
	InitValidators(validate, NewTranslator())
	return validate
}

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// ToValidationError converts validator errors to a ValidationError holding one FieldError per failing field.
func ToValidationError(err error, translator ut.Translator) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	flds := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Error()
		if translator != nil {
			msg = fe.Translate(translator)
		}
		flds = append(flds, FieldError{Field: fe.Field(), Error: msg})
	}
	return NewValidationError(nil, flds...)
}

// IsValidationError reports whether err is an input error, either raw validator errors or a *ValidationError.
func IsValidationError(err error) bool {
	if _, ok := errors.Cause(err).(validator.ValidationErrors); ok {
		return true
	}
	var verr *ValidationError
	return errors.As(err, &verr)
}

// Custom Global Validators

func weekdayValidation(fl validator.FieldLevel) bool {
	return weekdays[fl.Field().String()]
}

func slotTimeValidation(fl validator.FieldLevel) bool {
	return slotTimeRgx.MatchString(fl.Field().String())
}

func attStatusValidation(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "Present" || s == "Absent"
}

func layoutValidation(layout string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		_, err := time.Parse(layout, fl.Field().String())
		return err == nil
	}
}
