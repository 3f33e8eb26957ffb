// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// handlers, the service, and every storage backend import types without
// depending on each other.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Student represents one student record as it is stored.
//
// RegNo is the externally assigned registration number. It is the lookup
// key for every single-record operation and never changes after creation.
// IsDeleted marks a soft-deleted record; rows are never physically removed.
type Student struct {
	ID        int64     `json:"id"`
	RegNo     string    `json:"regNo"`
	Name      string    `json:"name"`
	Class     string    `json:"class"`
	RollNo    string    `json:"rollNo"`
	ContactNo string    `json:"contactNo"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Request payloads
// ─────────────────────────────────────────────────────────────────────────────

// CreateStudentInput is the body of POST /api/students.
//
// validate:"required" is checked by go-playground/validator after the
// service has trimmed surrounding whitespace, so "   " counts as missing.
type CreateStudentInput struct {
	RegNo     FlexString `json:"regNo"     validate:"required"`
	Name      string     `json:"name"      validate:"required"`
	Class     FlexString `json:"class"     validate:"required"`
	RollNo    FlexString `json:"rollNo"    validate:"required"`
	ContactNo FlexString `json:"contactNo" validate:"required"`
}

// StudentPatch is the body of PUT /api/students/{regNo}.
// A nil field was not supplied and is left untouched.
type StudentPatch struct {
	Name      *string     `json:"name"`
	Class     *FlexString `json:"class"`
	RollNo    *FlexString `json:"rollNo"`
	ContactNo *FlexString `json:"contactNo"`
}

// IsEmpty reports whether the patch carries no updatable field.
func (p StudentPatch) IsEmpty() bool {
	return p.Name == nil && p.Class == nil && p.RollNo == nil && p.ContactNo == nil
}

// StudentChanges is the set of column updates handed to a storage backend.
// Only non-nil fields are written; UpdatedAt is always written.
type StudentChanges struct {
	Name      *string
	Class     *string
	RollNo    *string
	ContactNo *string
	IsDeleted *bool
	UpdatedAt time.Time
}

// ─────────────────────────────────────────────────────────────────────────────
// Listing
// ─────────────────────────────────────────────────────────────────────────────

// Pagination describes the window returned by a list call.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// StudentPage is one page of students, newest first.
type StudentPage struct {
	Students   []Student  `json:"students"`
	Pagination Pagination `json:"pagination"`
}

// ─────────────────────────────────────────────────────────────────────────────
// FlexString
// ─────────────────────────────────────────────────────────────────────────────

// FlexString is a string that also accepts a JSON number.
//
// Clients send roll numbers and contact numbers both as "12" and as 12;
// either form decodes to the same text. null leaves the value empty.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a string or a number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// Trimmed returns the value without surrounding whitespace.
func (f FlexString) Trimmed() string {
	return strings.TrimSpace(string(f))
}
