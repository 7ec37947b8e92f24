package parser

import "fmt"

// StructureError indicates a required page anchor is missing, i.e. the page
// does not match the expected template.
type StructureError struct {
	URL    string
	Field  string
	Anchor string
}

func (e *StructureError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("structure: %s: missing %s", e.URL, e.Anchor)
	}
	return fmt.Sprintf("structure: %s: %s: missing %s", e.URL, e.Field, e.Anchor)
}

// ParseError indicates markup or anchor text that could not be converted.
type ParseError struct {
	URL   string
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse: %s: %s %q: %v", e.URL, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
