// Package provider holds the catalog of listing providers supported by ownerscan.
//
// A provider is a flat configuration bundle: a stable identifier, a display
// name, and the two patterns used to locate an owner's name and phone number
// inside one block of listing text. There is no behaviour beyond pattern
// substitution, so providers are plain values in an ordered table.
//
// The registry is built once at startup (built-in catalog plus an optional
// catalog file) and is read-only afterwards.
package provider

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/hurttlocker/ownerscan/internal/segment"
)

// DefaultBlockSeparator splits listing text on blank lines: any whitespace run
// containing at least two newlines.
const DefaultBlockSeparator = segment.BlankLinePattern

// DefaultMatchTimeout bounds a single pattern evaluation. Patterns run on a
// backtracking engine, and catalog files can carry arbitrary expressions.
const DefaultMatchTimeout = 2 * time.Second

// ErrUnknownProvider is returned when a provider id has no registered entry.
var ErrUnknownProvider = errors.New("unknown provider")

// UnknownProviderError carries the id that failed to resolve.
type UnknownProviderError struct {
	ID string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("provider %q not found", e.ID)
}

// Unwrap lets errors.Is match ErrUnknownProvider.
func (e *UnknownProviderError) Unwrap() error {
	return ErrUnknownProvider
}

// Definition is the uncompiled form of a provider, as written in the built-in
// catalog or a catalog file.
type Definition struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	NamePattern    string `yaml:"name_pattern" json:"name_pattern"`
	PhonePattern   string `yaml:"phone_pattern" json:"phone_pattern"`
	BlockSeparator string `yaml:"block_separator,omitempty" json:"block_separator,omitempty"`
}

// Provider is a compiled, immutable provider entry.
type Provider struct {
	ID   string
	Name string

	name      *regexp2.Regexp
	phone     *regexp2.Regexp
	separator *regexp.Regexp
}

// Compile validates a definition and compiles its patterns.
func Compile(def Definition) (Provider, error) {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return Provider{}, fmt.Errorf("provider id is required")
	}
	if strings.TrimSpace(def.NamePattern) == "" {
		return Provider{}, fmt.Errorf("provider %q: name_pattern is required", id)
	}
	if strings.TrimSpace(def.PhonePattern) == "" {
		return Provider{}, fmt.Errorf("provider %q: phone_pattern is required", id)
	}

	namePattern, err := compilePattern(def.NamePattern)
	if err != nil {
		return Provider{}, fmt.Errorf("provider %q: compiling name_pattern: %w", id, err)
	}
	phonePattern, err := compilePattern(def.PhonePattern)
	if err != nil {
		return Provider{}, fmt.Errorf("provider %q: compiling phone_pattern: %w", id, err)
	}

	sepExpr := def.BlockSeparator
	if strings.TrimSpace(sepExpr) == "" {
		sepExpr = DefaultBlockSeparator
	}
	sep, err := regexp.Compile(sepExpr)
	if err != nil {
		return Provider{}, fmt.Errorf("provider %q: compiling block_separator: %w", id, err)
	}

	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = id
	}

	return Provider{
		ID:        id,
		Name:      name,
		name:      namePattern,
		phone:     phonePattern,
		separator: sep,
	}, nil
}

func compilePattern(expr string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = DefaultMatchTimeout
	return re, nil
}

// MatchName returns the trimmed first capture group of the name pattern.
// ok is false when the pattern does not match or the capture is blank.
func (p Provider) MatchName(block string) (string, bool, error) {
	v, err := firstGroup(p.name, block)
	if err != nil {
		return "", false, fmt.Errorf("provider %q name pattern: %w", p.ID, err)
	}
	return v, v != "", nil
}

// MatchPhone returns the trimmed first capture group of the phone pattern,
// or "" when the pattern does not match.
func (p Provider) MatchPhone(block string) (string, error) {
	v, err := firstGroup(p.phone, block)
	if err != nil {
		return "", fmt.Errorf("provider %q phone pattern: %w", p.ID, err)
	}
	return v, nil
}

// BlockSeparator is the expression used to segment text for this provider.
func (p Provider) BlockSeparator() *regexp.Regexp {
	return p.separator
}

func firstGroup(re *regexp2.Regexp, text string) (string, error) {
	m, err := re.FindStringMatch(text)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", nil
	}
	g := m.GroupByNumber(1)
	if g == nil {
		return "", nil
	}
	return strings.TrimSpace(g.String()), nil
}
