package keycase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
)

// Namer is a naming convention: a pure, idempotent function from key to key.
type Namer func(string) string

// Converter adapts n to a Converter that never fails.
func (n Namer) Converter() Converter {
	return func(key string) (string, error) {
		return n(key), nil
	}
}

var (
	// Snake converts "userName" to "user_name".
	Snake Namer = strcase.ToSnake

	// LowerCamel converts "user_name" to "userName".
	LowerCamel Namer = strcase.ToLowerCamel

	// Camel converts "user_name" to "UserName".
	Camel Namer = strcase.ToCamel

	// Kebab converts "userName" to "user-name".
	Kebab Namer = strcase.ToKebab

	// ScreamingSnake converts "userName" to "USER_NAME".
	ScreamingSnake Namer = strcase.ToScreamingSnake

	// Identity leaves keys untouched.
	Identity Namer = func(s string) string { return s }
)

var namers = map[string]Namer{
	"snake":     Snake,
	"camel":     LowerCamel,
	"pascal":    Camel,
	"kebab":     Kebab,
	"screaming": ScreamingSnake,
	"identity":  Identity,
}

// Lookup resolves a convention by its configuration name.
func Lookup(name string) (Namer, error) {
	n, ok := namers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("keycase: unknown convention %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	return n, nil
}

// Names lists the convention names accepted by Lookup.
func Names() []string {
	names := make([]string, 0, len(namers))
	for name := range namers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
