package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Field   string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func missingField(field string) *DomainError {
	err := domainError(http.StatusBadRequest, "MISSING_FIELD", field+" is required", nil)
	err.Field = field
	return err
}

func invalidEnum(field, value string, allowed []string) *DomainError {
	err := domainError(http.StatusBadRequest, "INVALID_ENUM", fmt.Sprintf("%s %q is not allowed", field, value), map[string]any{"allowed": allowed})
	err.Field = field
	return err
}

// invalidReference reports an id field naming a row that does not exist.
func invalidReference(field string) *DomainError {
	err := domainError(http.StatusBadRequest, "INVALID_REFERENCE", field+" does not reference an existing row", nil)
	err.Field = field
	return err
}

func notFound(kind string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", kind+" not found", nil)
}

func unknownAction(action string) *DomainError {
	err := domainError(http.StatusBadRequest, "UNKNOWN_ACTION", fmt.Sprintf("Unknown action %q", action), nil)
	err.Field = "action"
	return err
}

func unauthenticated(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHENTICATED", message, nil)
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func storeError(err error) *DomainError {
	return domainError(http.StatusInternalServerError, "STORE_ERROR", err.Error(), nil)
}

func rateLimited() *DomainError {
	return domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
}

func payloadTooLarge(limit int64) *DomainError {
	return domainError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", fmt.Sprintf("body exceeds %d bytes", limit), nil)
}

func invalidUpload(message string) *DomainError {
	err := domainError(http.StatusBadRequest, "INVALID_UPLOAD", message, nil)
	err.Field = "file"
	return err
}

func disabled(feature string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", feature+" is disabled", nil)
}
