package refname

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidName = errors.New("invalid reference name")

// reserved holds DDL grammar keywords that cannot name a reference.
// Matched case-insensitively.
var reserved = map[string]struct{}{
	"branch":  {},
	"tag":     {},
	"version": {},
	"retain":  {},
}

// Validate checks a reference name against the identifier syntax:
// non-empty, alphanumeric plus [._-], not purely numeric, not a
// reserved keyword.
func Validate(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}

	numeric := true
	for _, r := range name {
		switch {
		case r >= '0' && r <= '9':
			// still possibly numeric
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '.', r == '_', r == '-':
			numeric = false
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, r)
		}
	}
	if numeric {
		return fmt.Errorf("%w: %q is purely numeric", ErrInvalidName, name)
	}

	if _, ok := reserved[strings.ToLower(name)]; ok {
		return fmt.Errorf("%w: %q is a reserved word", ErrInvalidName, name)
	}

	return nil
}
