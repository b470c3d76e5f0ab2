package core_test

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/firststep/core"
)

type itemInput struct {
	Kind     string `json:"kind" validate:"required,oneof=task course"`
	Login    string `json:"login" validate:"omitempty,alphanum_"`
	VideoURL string `json:"video_url" validate:"omitempty,url"`
}

func fieldErrors(t *testing.T, validate *validator.Validate, translator ut.Translator, v interface{}) map[string]string {
	t.Helper()
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	vErrs, ok := err.(validator.ValidationErrors)
	require.True(t, ok, "unexpected error: %v", err)
	res := make(map[string]string, len(vErrs))
	for _, fe := range vErrs {
		res[fe.Field()] = fe.Translate(translator)
	}
	return res
}

func TestInitValidators(t *testing.T) {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	tests := []struct {
		name  string
		input itemInput
		want  map[string]string
	}{
		{name: "valid", input: itemInput{Kind: "course", Login: "jane_doe", VideoURL: "https://videos.test.cd/1"}},
		{name: "required", input: itemInput{}, want: map[string]string{"kind": "this field is required"}},
		{name: "unknown kind", input: itemInput{Kind: "quiz"}, want: map[string]string{"kind": "kind must be one of: task, course"}},
		{
			name:  "invalid login and url",
			input: itemInput{Kind: "task", Login: "jane doe", VideoURL: "video"},
			want: map[string]string{
				"login":     "only alphanumeric characters and underscores are allowed",
				"video_url": "invalid url",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fieldErrors(t, validate, translator, tt.input))
		})
	}
}
