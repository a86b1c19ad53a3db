// Package models holds the domain types shared across the migration
// engine. Row shapes live in SQL; what crosses package boundaries here
// is identity and classification.
package models

import "strconv"

// AssemblyFlag is the tri-state classification of a drawing number.
// The storage encoding is a nullable integer: 1, 0, or NULL.
type AssemblyFlag int

const (
	AssemblyUnknown AssemblyFlag = iota
	Assembly
	NotAssembly
)

// NullableInt maps the flag to its storage encoding. Unknown maps to nil.
func (f AssemblyFlag) NullableInt() *int {
	switch f {
	case Assembly:
		v := 1
		return &v
	case NotAssembly:
		v := 0
		return &v
	}
	return nil
}

// FlagFromNullable is the inverse of NullableInt.
func FlagFromNullable(v *int) AssemblyFlag {
	if v == nil {
		return AssemblyUnknown
	}
	if *v == 1 {
		return Assembly
	}
	return NotAssembly
}

func (f AssemblyFlag) String() string {
	switch f {
	case Assembly:
		return "assembly"
	case NotAssembly:
		return "not_assembly"
	}
	return "unknown"
}

// UniqueKey builds the canonical "{job_number}|{line_number}" identity
// string joining normalized and legacy-shaped rows.
func UniqueKey(jobNumber string, lineNumber int) string {
	return jobNumber + "|" + strconv.Itoa(lineNumber)
}
