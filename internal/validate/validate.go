// Package validate contains input validation helpers shared by the config
// loader and the HTTP handlers.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// usernameRe enforces a conservative username pattern.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// Username validates a username string for length and allowed characters.
func Username(s string) error {
	if !usernameRe.MatchString(s) {
		return errors.New("invalid username")
	}
	return nil
}

// Role accepts exactly "admin" or "user".
func Role(s string) error {
	if s != "admin" && s != "user" {
		return errors.New("role must be admin or user")
	}
	return nil
}

// EntryName validates a single path component used as a new file or folder
// name: non-empty, no separators, not "." or "..".
func EntryName(s string) error {
	switch {
	case strings.TrimSpace(s) == "":
		return errors.New("name is required")
	case strings.ContainsAny(s, `/\`):
		return errors.New("name must not contain path separators")
	case s == "." || s == "..":
		return errors.New("invalid name")
	case strings.ContainsRune(s, 0):
		return errors.New("invalid name")
	}
	return nil
}

// BaseName reduces a client-supplied filename to its final component,
// treating both '/' and '\' as separators.
func BaseName(s string) string {
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// RootPath validates and normalizes a sandbox root path.
func RootPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("root path is required")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(abs)
	// Reject volume root ("/", "C:\\", etc.).
	if filepath.Dir(clean) == clean {
		return "", errors.New("root path cannot be filesystem root")
	}
	return clean, nil
}

var (
	structOnce sync.Once
	structV    *validator.Validate
)

func structValidator() *validator.Validate {
	structOnce.Do(func() {
		structV = validator.New(validator.WithRequiredStructEnabled())
		structV.RegisterTagNameFunc(tagName)
		// "role" applies Role to string fields.
		_ = structV.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return Role(fl.Field().String()) == nil
		})
	})
	return structV
}

// Struct validates v against its `validate` tags and flattens the failures
// into one human-readable error.
func Struct(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// tagName reports fields by their json or yaml key so messages match what
// the client or config file author wrote.
func tagName(f reflect.StructField) string {
	for _, key := range []string{"json", "yaml"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "role":
		return field + " must be admin or user"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
