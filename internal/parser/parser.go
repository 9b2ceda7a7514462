// Package parser post-processes raw model output and extracts code blocks
// from it. Each format (default, markdown, json, xml) is a Parser selected
// by key through a registry.
package parser

import (
	"errors"
	"fmt"
	"strings"
)

type CodeBlock struct {
	Language string `json:"language"`
	Content  string `json:"content"`
}

type Parser interface {
	// Name returns the registry key, e.g. "markdown".
	Name() string

	ParseResponse(text string) (string, error)
	ExtractCode(text string) ([]CodeBlock, error)
}

// Formatter is implemented by parsers that can shape an outgoing message
// into their format.
type Formatter interface {
	FormatMessage(message string) string
}

// ErrUnsupportedOperation is returned by ExtractCode on parsers that do
// not extract code.
var ErrUnsupportedOperation = errors.New("operation not supported by parser")

type UnsupportedParserError struct {
	Name      string
	Supported []string
}

func (e *UnsupportedParserError) Error() string {
	return fmt.Sprintf("unsupported parser type %q (available: %s)", e.Name, strings.Join(e.Supported, ", "))
}

// ParseError reports input a strict parser could not interpret.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s response: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
