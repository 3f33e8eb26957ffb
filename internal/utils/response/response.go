// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every endpoint answers with the same envelope:
//
//	{ "success": true,  "message": "...", "student": { ... } }
//	{ "success": false, "error": "...", "kind": "NotFoundError" }
//
// Payload keys (student, students, pagination) sit next to the envelope
// fields rather than under a nested "data" object.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/aanand-mishra/student-records/internal/types"
)

// Response is the envelope shared by every reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// StudentResponse carries a single record.
type StudentResponse struct {
	Response
	Student types.Student `json:"student"`
}

// StudentListResponse carries one page of records.
type StudentListResponse struct {
	Response
	Students   []types.Student  `json:"students"`
	Pagination types.Pagination `json:"pagination"`
}

// ─────────────────────────────────────────────────────────────────────────────
// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
// ─────────────────────────────────────────────────────────────────────────────
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// OK builds a successful envelope with an optional message.
func OK(message string) Response {
	return Response{Success: true, Message: message}
}

// Student wraps a record in a successful envelope.
func Student(message string, student types.Student) StudentResponse {
	return StudentResponse{Response: OK(message), Student: student}
}

// StudentList wraps a page of records in a successful envelope.
func StudentList(page types.StudentPage) StudentListResponse {
	return StudentListResponse{
		Response:   OK(""),
		Students:   page.Students,
		Pagination: page.Pagination,
	}
}

// Error builds a failed envelope with a stable kind and a readable message.
func Error(kind, message string) Response {
	return Response{Success: false, Error: message, Kind: kind}
}

// GeneralError wraps any Go error into a failed envelope without a kind.
// Use this for failures outside the record operations (decode errors,
// panics, health checks).
func GeneralError(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
