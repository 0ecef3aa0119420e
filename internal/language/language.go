// Package language holds the fixed set of language codes supported by the
// multilingual Chatterbox model and validates request languages against it.
package language

import (
	"errors"
	"fmt"
)

// English is the code every request degrades to when the English-only model
// is active.
const English = "en"

// ErrUnsupportedLanguage indicates a language code outside the supported set.
// Requests carrying such a code are rejected at the boundary, before any
// model resolution happens.
var ErrUnsupportedLanguage = errors.New("unsupported language code")

// codes is the full 23-language set of the multilingual model. The order is
// stable so the status endpoint reports a deterministic list.
var codes = []string{
	"ar", "da", "de", "el", "en", "es", "fi", "fr",
	"he", "hi", "it", "ja", "ko", "ms", "nl", "no",
	"pl", "pt", "ru", "sv", "sw", "tr", "zh",
}

var codeSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}

	return set
}()

// Supported reports whether the given code is one of the known languages.
func Supported(code string) bool {
	_, ok := codeSet[code]

	return ok
}

// Validate returns ErrUnsupportedLanguage (wrapped with the offending code)
// when the code is not in the supported set. An empty code is valid and means
// "use the configured default".
func Validate(code string) error {
	if code == "" {
		return nil
	}

	if !Supported(code) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}

	return nil
}

// Codes returns a copy of the supported language codes.
func Codes() []string {
	out := make([]string, len(codes))
	copy(out, codes)

	return out
}
