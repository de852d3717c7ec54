package parser

import "strings"

// Normalize collapses every whitespace run (Unicode spaces included) into a
// single space and trims the result. The empty string stands for "no value".
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// optional lifts a normalized string into a nullable record field.
func optional(s string) *string {
	if n := Normalize(s); n != "" {
		return &n
	}
	return nil
}
