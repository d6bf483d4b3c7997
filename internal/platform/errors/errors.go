// Package errors provides the structured error taxonomy used across the platform.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category from the platform's error taxonomy.
type Code string

const (
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNoLicense           Code = "NO_LICENSE"
	CodeQuotaExceeded       Code = "QUOTA_EXCEEDED"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeStorageTransient    Code = "STORAGE_TRANSIENT"
	CodeEncodeDecode        Code = "ENCODE_DECODE"
	CodeInternal            Code = "INTERNAL"
)

// ServiceError is a structured error carrying an HTTP surface and optional details.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code Code, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(code Code, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

func InvalidInput(field, reason string) *ServiceError {
	return New(CodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).WithDetails("reason", reason)
}

func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict)
}

func Forbidden(message string) *ServiceError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func NoLicense(tenant string) *ServiceError {
	return New(CodeNoLicense, "no applicable license for tenant", http.StatusForbidden).
		WithDetails("tenant", tenant)
}

func QuotaExceeded(customer, tenant string) *ServiceError {
	return New(CodeQuotaExceeded, "license quota exceeded", http.StatusForbidden).
		WithDetails("customer", customer).WithDetails("tenant", tenant)
}

func UpstreamUnavailable(target string, err error) *ServiceError {
	return Wrap(CodeUpstreamUnavailable, "upstream collaborator unavailable", http.StatusServiceUnavailable, err).
		WithDetails("target", target)
}

func StorageTransient(operation string, err error) *ServiceError {
	return Wrap(CodeStorageTransient, "transient storage failure", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func EncodeDecode(element string, err error) *ServiceError {
	return Wrap(CodeEncodeDecode, "encode/decode failure", http.StatusInternalServerError, err).
		WithDetails("element", element)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

// IsServiceError reports whether err (or something it wraps) is a *ServiceError.
func IsServiceError(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr)
}

// As extracts a *ServiceError from err's chain, if present.
func As(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// HTTPStatus returns the HTTP status for err, defaulting to 500.
func HTTPStatus(err error) int {
	if svcErr := As(err); svcErr != nil {
		return svcErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// CodeOf returns the taxonomy code for err, or CodeInternal if err isn't a ServiceError.
func CodeOf(err error) Code {
	if svcErr := As(err); svcErr != nil {
		return svcErr.Code
	}
	return CodeInternal
}
