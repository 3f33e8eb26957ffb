// Package student contains all HTTP handlers related to the Student resource.
//
// HANDLER PATTERN USED HERE: THE CLOSURE / FACTORY PATTERN
// ────────────────────────────────────────────────────────
// Go's router expects handler functions with the signature:
//
//	func(http.ResponseWriter, *http.Request)
//
// Each exported factory accepts the record service and returns a handler
// with that signature. The factory runs once at startup; the returned
// closure runs on every request:
//
//	router.HandleFunc("POST /api/students", student.New(svc))
//
// Handlers only translate HTTP to service calls and back. Validation,
// uniqueness and soft-delete rules live in package service.
package student

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aanand-mishra/student-records/internal/service"
	"github.com/aanand-mishra/student-records/internal/types"
	"github.com/aanand-mishra/student-records/internal/utils/response"
)

// maxBodyBytes bounds request bodies; a student record is a few hundred bytes.
const maxBodyBytes = 1 << 20

// Service is the record service as seen by the handlers.
type Service interface {
	Create(ctx context.Context, in types.CreateStudentInput) (types.Student, error)
	List(ctx context.Context, page, limit int) (types.StudentPage, error)
	Get(ctx context.Context, regNo string) (types.Student, error)
	Update(ctx context.Context, regNo string, patch types.StudentPatch) (types.Student, error)
	SoftDelete(ctx context.Context, regNo string) (types.Student, error)
	Ping(ctx context.Context) error
}

// RegisterRoutes mounts every student endpoint on router.
//
// Route table:
//
//	POST   /api/students            → create a new student
//	GET    /api/students            → list students (?page=&limit=)
//	GET    /api/students/{regNo}    → get one student
//	PUT    /api/students/{regNo}    → update some fields of a student
//	DELETE /api/students/{regNo}    → soft-delete a student
//	GET    /healthz                 → store reachability
func RegisterRoutes(router *http.ServeMux, svc Service) {
	router.HandleFunc("POST /api/students", New(svc))
	router.HandleFunc("GET /api/students", GetList(svc))
	router.HandleFunc("GET /api/students/{regNo}", GetByRegNo(svc))
	router.HandleFunc("PUT /api/students/{regNo}", Update(svc))
	router.HandleFunc("DELETE /api/students/{regNo}", Delete(svc))
	router.HandleFunc("GET /healthz", Health(svc))
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/students
//
// Request body (JSON):
//
//	{ "regNo": "R1", "name": "Asha", "class": "10", "rollNo": "1", "contactNo": "555" }
//
// Success response (201 Created):
//
//	{ "success": true, "message": "Student added successfully", "student": { ... } }
//
// Error responses:
//
//	400 Bad Request  : empty/malformed body, missing field, duplicate regNo
//	                   or duplicate roll number in the class
//	500 Internal     : database error
//
// ─────────────────────────────────────────────────────────────────────────────
func New(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a student")

		var in types.CreateStudentInput
		if !decodeBody(w, r, &in) {
			return
		}

		created, err := svc.Create(r.Context(), in)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusCreated,
			response.Student("Student added successfully", created))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET /api/students?page=&limit=
//
// Missing or unparsable page/limit fall back to the defaults (1 and 10).
//
// Success response (200 OK):
//
//	{ "success": true, "students": [ ... ],
//	  "pagination": { "total": 15, "page": 2, "limit": 10, "totalPages": 2 } }
//
// ─────────────────────────────────────────────────────────────────────────────
func GetList(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page")
		limit := queryInt(r, "limit")
		slog.Info("listing students", slog.Int("page", page), slog.Int("limit", limit))

		result, err := svc.List(r.Context(), page, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, response.StudentList(result))
	}
}

// GetByRegNo handles GET /api/students/{regNo}. Soft-deleted students
// are returned too; check isDeleted.
func GetByRegNo(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		regNo := r.PathValue("regNo")
		slog.Info("getting a student", slog.String("reg_no", regNo))

		student, err := svc.Get(r.Context(), regNo)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, response.Student("", student))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT /api/students/{regNo}
// Changes only the fields present in the body.
//
// Request body (JSON), any non-empty subset of:
//
//	{ "name": "...", "class": "...", "rollNo": "...", "contactNo": "..." }
//
// Error responses:
//
//	400 Bad Request  : no updatable field, blank field, roll number taken
//	404 Not Found    : unknown regNo
//	500 Internal     : database error
//
// ─────────────────────────────────────────────────────────────────────────────
func Update(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		regNo := r.PathValue("regNo")
		slog.Info("updating a student", slog.String("reg_no", regNo))

		var patch types.StudentPatch
		if !decodeBody(w, r, &patch) {
			return
		}

		updated, err := svc.Update(r.Context(), regNo, patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK,
			response.Student("Student updated successfully", updated))
	}
}

// Delete handles DELETE /api/students/{regNo}. The record is kept and
// flagged isDeleted=true.
func Delete(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		regNo := r.PathValue("regNo")
		slog.Info("deactivating a student", slog.String("reg_no", regNo))

		deleted, err := svc.SoftDelete(r.Context(), regNo)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK,
			response.Student("Student deactivated successfully", deleted))
	}
}

// Health handles GET /healthz.
func Health(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := svc.Ping(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusServiceUnavailable,
				response.GeneralError(errors.New("storage unavailable")))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.OK("ok"))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

// decodeBody reads a JSON body into dst. On failure it writes the 400
// response itself and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)

	if errors.Is(err, io.EOF) {
		response.WriteJSON(w, http.StatusBadRequest,
			response.Error(string(service.KindValidation), "request body is empty"))
		return false
	}

	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest,
			response.Error(string(service.KindValidation), "invalid request body: "+err.Error()))
		return false
	}

	return true
}

// queryInt returns the integer value of a query parameter, or 0 when it
// is missing or not a number. The service maps 0 to the default.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

// statusFor maps an error kind to its HTTP status. Conflicts share 400
// with validation failures: both are fixable by changing the request.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindConflict:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	kind := service.KindOf(err)
	response.WriteJSON(w, statusFor(kind),
		response.Error(string(kind), service.MessageOf(err)))
}
