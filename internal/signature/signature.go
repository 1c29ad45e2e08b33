// Package signature defines the defect-signature configuration for blockmend.
// The scanner and normalizer are language-agnostic text surgery; everything
// language-specific (keyword spellings, handler shapes, the wording of the
// warning calls) lives here and is supplied by the caller, either as the
// built-in default or loaded from a YAML file.
package signature

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Signature describes one malformed-block shape: a try clause whose body is
// a no-op placeholder, followed by a run of mis-indented exception handlers
// whose bodies contain only logging statements and comments, with the real
// guarded logic dangling after the chain.
type Signature struct {
	// TryKeyword is the clause opener, without the trailing colon.
	TryKeyword string `yaml:"try_keyword"`

	// PlaceholderBody is the no-op statement that marks the try body as
	// fake (the original corruption always left a lone "pass").
	PlaceholderBody string `yaml:"placeholder_body"`

	// ExceptKeyword opens a handler clause.
	ExceptKeyword string `yaml:"except_keyword"`

	// SpecificException is the first exception type the repaired handler
	// chain catches.
	SpecificException string `yaml:"specific_exception"`

	// GeneralException is the catch-all type that closes the chain.
	GeneralException string `yaml:"general_exception"`

	// Binder is the exception binder spelling, e.g. "as e".
	Binder string `yaml:"binder"`

	// LogCallPrefixes are the call spellings that qualify a handler body
	// line as "only logging". A handler containing anything else is not
	// part of the defect.
	LogCallPrefixes []string `yaml:"log_call_prefixes"`

	// MinHandlers is the minimum number of consecutive handler clauses
	// required for a match. The observed corruption always produced two.
	MinHandlers int `yaml:"min_handlers"`

	// IndentUnit is the number of spaces per indentation level used when
	// re-indenting the recovered fragment.
	IndentUnit int `yaml:"indent_unit"`
}

// Default returns the signature of the corruption this tool was built for:
// duplicated AttributeError/Exception handlers wrapping a stranded pass.
func Default() *Signature {
	return &Signature{
		TryKeyword:        "try",
		PlaceholderBody:   "pass",
		ExceptKeyword:     "except",
		SpecificException: "AttributeError",
		GeneralException:  "Exception",
		Binder:            "as e",
		LogCallPrefixes:   []string{"logger.warning", "logger.error", "logger.info", "logging.warning", "print"},
		MinHandlers:       2,
		IndentUnit:        4,
	}
}

// Load reads a signature from a YAML file. Fields left unset fall back to
// the default signature, so a config file only needs to name what differs.
func Load(path string) (*Signature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}
	sig := Default()
	if err := yaml.Unmarshal(data, sig); err != nil {
		return nil, fmt.Errorf("parse signature %s: %w", path, err)
	}
	if err := sig.Validate(); err != nil {
		return nil, fmt.Errorf("signature %s: %w", path, err)
	}
	return sig, nil
}

// Validate checks that the signature is internally usable.
func (s *Signature) Validate() error {
	switch {
	case strings.TrimSpace(s.TryKeyword) == "":
		return fmt.Errorf("try_keyword must not be empty")
	case strings.TrimSpace(s.ExceptKeyword) == "":
		return fmt.Errorf("except_keyword must not be empty")
	case strings.TrimSpace(s.PlaceholderBody) == "":
		return fmt.Errorf("placeholder_body must not be empty")
	case s.SpecificException == s.GeneralException:
		return fmt.Errorf("specific_exception and general_exception must differ")
	case s.MinHandlers < 1:
		return fmt.Errorf("min_handlers must be >= 1, got %d", s.MinHandlers)
	case s.IndentUnit < 1:
		return fmt.Errorf("indent_unit must be >= 1, got %d", s.IndentUnit)
	}
	return nil
}

// IsLogCall reports whether a trimmed statement line is one of the
// configured logging calls.
func (s *Signature) IsLogCall(trimmed string) bool {
	for _, prefix := range s.LogCallPrefixes {
		if strings.HasPrefix(trimmed, prefix+"(") || strings.HasPrefix(trimmed, prefix+" (") {
			return true
		}
	}
	return false
}
