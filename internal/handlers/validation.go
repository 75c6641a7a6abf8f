package handlers

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// usernamePattern は登録時と同じ文字種（英数字と @ . + - _）です
var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// validateUsername はURLで指定されたユーザー名のバリデーションを行います
func validateUsername(name string) error {
	if err := validate.Var(normalizeID(name), "required,max=150"); err != nil {
		return fmt.Errorf("username required (max 150 characters)")
	}
	if !usernamePattern.MatchString(normalizeID(name)) {
		return fmt.Errorf("username contains invalid characters")
	}
	return nil
}
