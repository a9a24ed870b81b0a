// ============================================================================
// internal/gateway/util/util.go
// HTTP response helpers and service error mapping
// ============================================================================

package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Dqvinh20/awp-go-be/internal/auth"
	"github.com/Dqvinh20/awp-go-be/internal/class"
	"github.com/Dqvinh20/awp-go-be/internal/classgrade"
	"github.com/Dqvinh20/awp-go-be/internal/gradereview"
	"github.com/Dqvinh20/awp-go-be/internal/notification"
)

var validate = validator.New()

// ErrorResponse is the JSON error envelope for all endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SuccessResponse is the JSON success envelope for all endpoints
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes a JSON success response
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := SuccessResponse{Success: true, Data: data}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// WriteJSONError writes a JSON error response
func WriteJSONError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: errorType, Message: message, Code: statusCode}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding JSON error response: %v", err)
	}
}

// HandleServiceError maps a domain error to the right HTTP status
func HandleServiceError(w http.ResponseWriter, err error) {
	switch {
	case isUnauthorized(err):
		WriteJSONError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, classgrade.ErrNotClassTeacher), errors.Is(err, classgrade.ErrNotClassStudent):
		WriteJSONError(w, http.StatusForbidden, "Forbidden", err.Error())
	case isNotFound(err):
		WriteJSONError(w, http.StatusNotFound, "Not Found", err.Error())
	case isBadRequest(err):
		WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		log.Printf("Internal error: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
	}
}

func isUnauthorized(err error) bool {
	return errors.Is(err, auth.ErrInvalidCredentials) ||
		errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrSessionRevoked) ||
		errors.Is(err, auth.ErrAccountDisabled)
}

func isNotFound(err error) bool {
	for _, sentinel := range []error{
		classgrade.ErrClassGradeNotFound,
		classgrade.ErrColumnNotFound,
		classgrade.ErrRowNotFound,
		class.ErrClassNotFound,
		gradereview.ErrReviewNotFound,
		notification.ErrNotificationNotFound,
		auth.ErrUserNotFound,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isBadRequest(err error) bool {
	if classgrade.IsValidationError(err) {
		return true
	}
	for _, sentinel := range []error{
		class.ErrAlreadyJoined,
		class.ErrNoStudentID,
		class.ErrNotATeacher,
		gradereview.ErrReviewFinished,
		gradereview.ErrOpenReviewExist,
		gradereview.ErrNoGradeRow,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// DecodeAndValidate decodes a JSON body into dst and runs struct validation
func DecodeAndValidate(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("invalid request body")
		}
		var fields []string
		for _, fe := range err.(validator.ValidationErrors) {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(fields, ", "))
	}
	return nil
}

// ExtractToken pulls the bearer token from the Authorization header
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return header
}
