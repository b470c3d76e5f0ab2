package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const (
	alphaNumUnderTag = "alphanum_"
	requiredTag      = "required"
	requiredWithTag  = "required_with"
	urlTag           = "url"
	oneOfTag         = "oneof"
)

var alphaNumUnderRegex = regexp.MustCompile(`^\w+$`)

// translations overriding the default English ones. {0} is the field name, {1} the tag parameter.
var globalTranslations = []struct {
	tag, text string
}{
	{alphaNumUnderTag, "only alphanumeric characters and underscores are allowed"},
	{requiredTag, "this field is required"},
	{requiredWithTag, "this field is required"},
	{urlTag, "invalid url"},
	// item kinds (task, course), permission statuses (granted, pending)
	{oneOfTag, "{0} must be one of: {1}"},
}

// InitValidators registers the global validations and their translations.
// Field errors are named after the JSON fields the API exposes.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(jsonFieldName)
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)

	for _, tr := range globalTranslations {
		RegisterCustomTranslation(validate, translator, tr.tag, tr.text, true)
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// RegisterCustomTranslation registers the translation of a validation tag.
// A space separated parameter, like oneof's, reads as a comma separated list.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	ovrd := len(override) > 0 && override[0]
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			param := strings.Join(strings.Fields(fe.Param()), ", ")
			s, _ := t.T(tag, fe.Field(), param)
			return s
		},
	)
}

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}
