package forms

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Default messages of the contact form.
const (
	MsgRequired = "Este campo no puede estar vacío"
	MsgEmail    = "Correo no valido"
)

// Validator validates a field value.
type Validator interface {
	// Validate checks if the value is valid.
	Validate(value any) error

	// Message returns the user-facing error message.
	Message() string
}

// RequiredValidator validates that a field is not empty. Any character,
// whitespace included, makes a string non-empty.
type RequiredValidator struct {
	Msg string
}

func (v RequiredValidator) Validate(value any) error {
	if isEmpty(value) {
		return errors.New("required")
	}
	return nil
}

func (v RequiredValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return MsgRequired
}

// EmailValidator validates email syntax. Unlike the other format
// validators it rejects empty values, so an email step cannot be skipped.
type EmailValidator struct {
	Msg string
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func (v EmailValidator) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return errors.New("invalid email")
	}
	if !validEmail(str) {
		return errors.New("invalid email")
	}
	return nil
}

func (v EmailValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return MsgEmail
}

func validEmail(s string) bool {
	if !emailRegex.MatchString(s) {
		return false
	}
	local, domain, _ := strings.Cut(s, "@")
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}
	if strings.Contains(s, "..") {
		return false
	}
	if strings.HasPrefix(domain, "-") || strings.HasPrefix(domain, ".") {
		return false
	}
	return true
}

// charCount counts characters the way a reader does: "é" typed as e plus
// a combining accent is one character.
func charCount(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}

// MinLengthValidator validates minimum string length in characters.
type MinLengthValidator struct {
	Min int
	Msg string
}

func (v MinLengthValidator) Validate(value any) error {
	str, _ := value.(string)
	if charCount(str) < v.Min {
		return fmt.Errorf("too short (min %d)", v.Min)
	}
	return nil
}

func (v MinLengthValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return fmt.Sprintf("Debe tener al menos %d caracteres", v.Min)
}

// MaxLengthValidator validates maximum string length in characters.
type MaxLengthValidator struct {
	Max int
	Msg string
}

func (v MaxLengthValidator) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	if charCount(str) > v.Max {
		return fmt.Errorf("too long (max %d)", v.Max)
	}
	return nil
}

func (v MaxLengthValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return fmt.Sprintf("Debe tener como máximo %d caracteres", v.Max)
}

// PatternValidator validates against a compiled regular expression.
type PatternValidator struct {
	Re  *regexp.Regexp
	Msg string
}

func (v PatternValidator) Validate(value any) error {
	str, ok := value.(string)
	if !ok || str == "" {
		return nil
	}
	if !v.Re.MatchString(str) {
		return errors.New("pattern mismatch")
	}
	return nil
}

func (v PatternValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return "Formato no valido"
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return false
	}
}

// Convenience constructors. An optional msg overrides the default message.

// Required returns a required validator.
func Required(msg ...string) Validator {
	return RequiredValidator{Msg: first(msg)}
}

// Email returns an email validator.
func Email(msg ...string) Validator {
	return EmailValidator{Msg: first(msg)}
}

// MinLength returns a minimum length validator.
func MinLength(n int, msg ...string) Validator {
	return MinLengthValidator{Min: n, Msg: first(msg)}
}

// MaxLength returns a maximum length validator.
func MaxLength(n int, msg ...string) Validator {
	return MaxLengthValidator{Max: n, Msg: first(msg)}
}

// Pattern returns a pattern validator. It panics if pattern does not
// compile; use the definition loader for untrusted patterns.
func Pattern(pattern string, msg ...string) Validator {
	return PatternValidator{Re: regexp.MustCompile(pattern), Msg: first(msg)}
}

func first(msg []string) string {
	if len(msg) > 0 {
		return msg[0]
	}
	return ""
}
