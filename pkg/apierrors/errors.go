// Package apierrors defines the tagged variant of every user-visible
// failure the front end can produce: a stable wire code, an HTTP status,
// and a human message. Handlers and lower-level components never return
// bare errors across a component boundary; they return (or wrap into) an
// *Error so the chain runtime can translate it to a response without
// inspecting strings.
package apierrors

import (
	"fmt"
	"net/http"
	"time"

	"github.com/zeebo/errs"
)

// Code is a stable REST error code, echoed to clients in the response body
// and used by tests and other services as a discriminant.
type Code string

// Client identity errors.
const (
	CodeAccountDoesNotExist          Code = "AccountDoesNotExist"
	CodeUserDoesNotExist             Code = "UserDoesNotExist"
	CodeAccountBlocked               Code = "AccountBlocked"
	CodeKeyDoesNotExist              Code = "KeyDoesNotExist"
	CodeInvalidKeyId                 Code = "InvalidKeyId"
	CodeInvalidSignature             Code = "InvalidSignature"
	CodeInvalidAuthenticationToken   Code = "InvalidAuthenticationToken"
	CodeInvalidHttpAuthToken         Code = "InvalidHttpAuthenticationToken"
	CodeInvalidAlgorithm             Code = "InvalidAlgorithm"
	CodeAuthorizationRequired        Code = "AuthorizationRequired"
	CodeAuthorizationSchemeNotAllow  Code = "AuthorizationSchemeNotAllowed"
	CodeAuthorizationFailed          Code = "AuthorizationFailed"
	CodeNoMatchingRoleTag            Code = "NoMatchingRoleTag"
	CodeInvalidRole                  Code = "InvalidRole"
	CodeInvalidRoleTag               Code = "InvalidRoleTag"
	CodeMissingPermission            Code = "MissingPermission"
	CodeInvalidQueryStringAuthn      Code = "InvalidQueryStringAuthentication"
	CodeCrossAccount                 Code = "CrossAccount"
	CodeRulesEvaluationFailed        Code = "RulesEvaluationFailed"
	CodeAuthorizationError           Code = "AuthorizationError"
)

// Request shape errors.
const (
	CodeInvalidResource          Code = "InvalidResource"
	CodeInvalidParameter         Code = "InvalidParameter"
	CodeInvalidUpdate            Code = "InvalidUpdate"
	CodeInvalidDurabilityLevel   Code = "InvalidDurabilityLevel"
	CodeInvalidLink              Code = "InvalidLink"
	CodeLocationRequired         Code = "LocationRequired"
	CodeInvalidMaxContentLength  Code = "InvalidMaxContentLength"
	CodeContentLengthRequired    Code = "ContentLengthRequired"
	CodeContentMD5Mismatch       Code = "ContentMD5Mismatch"
	CodeBadRequest               Code = "BadRequest"
	CodeNotAcceptable            Code = "NotAcceptable"
	CodeRangeNotSatisfiable      Code = "RangeNotSatisfiable"
)

// Namespace errors.
const (
	CodeResourceNotFound             Code = "ResourceNotFound"
	CodeDirectoryDoesNotExist        Code = "DirectoryDoesNotExist"
	CodeDirectoryNotEmpty            Code = "DirectoryNotEmpty"
	CodeDirectoryLimitExceeded       Code = "DirectoryLimitExceeded"
	CodeOperationNotAllowedOnDir     Code = "OperationNotAllowedOnDirectory"
	CodeOperationNotAllowedOnRootDir Code = "OperationNotAllowedOnRootDirectory"
	CodeParentNotDirectory           Code = "ParentNotDirectory"
	CodeEntityAlreadyExists          Code = "EntityAlreadyExists"
	CodeSourceObjectNotFound         Code = "SourceObjectNotFound"
	CodeLinkNotObject                Code = "LinkNotObject"
	CodeConcurrentRequest            Code = "ConcurrentRequest"
)

// MPU errors.
const (
	CodeMultipartUploadInvalidArgument Code = "MultipartUploadInvalidArgument"
	CodeInvalidMultipartUploadState    Code = "InvalidMultipartUploadState"
	CodeMultipartUploadPartNum         Code = "MultipartUploadPartNum"
)

// Transport / capacity errors.
const (
	CodeNotEnoughSpace          Code = "NotEnoughSpace"
	CodeMaxContentLengthExceed  Code = "MaxContentLengthExceeded"
	CodeUploadTimeout           Code = "UploadTimeout"
	CodeUploadAbandoned         Code = "UploadAbandoned"
	CodeExpectedUpgrade         Code = "ExpectedUpgrade"
	CodeThrottledError          Code = "ThrottledError"
	CodeServiceUnavailable      Code = "ServiceUnavailable"
	CodeMethodNotAllowed        Code = "MethodNotAllowed"
	CodeQueryParameterForbidden Code = "QueryParameterForbidden"
	CodeUnprocessableEntity     Code = "UnprocessableEntity"
)

// Server errors.
const (
	CodeInternalError          Code = "InternalError"
	CodeNotImplemented         Code = "NotImplemented"
	CodeSnaplinksDisabled      Code = "SnaplinksDisabled"
	CodeSecureTransportRequire Code = "SecureTransportRequired"
)

var statusByCode = map[Code]int{
	CodeAccountDoesNotExist:         http.StatusForbidden,
	CodeUserDoesNotExist:            http.StatusForbidden,
	CodeAccountBlocked:              http.StatusForbidden,
	CodeKeyDoesNotExist:             http.StatusForbidden,
	CodeInvalidKeyId:                http.StatusForbidden,
	CodeInvalidSignature:            http.StatusForbidden,
	CodeInvalidAuthenticationToken:  http.StatusForbidden,
	CodeInvalidHttpAuthToken:        http.StatusForbidden,
	CodeInvalidAlgorithm:            http.StatusUnauthorized,
	CodeAuthorizationRequired:       http.StatusUnauthorized,
	CodeAuthorizationSchemeNotAllow: http.StatusForbidden,
	CodeAuthorizationFailed:         http.StatusForbidden,
	CodeNoMatchingRoleTag:           http.StatusForbidden,
	CodeInvalidRole:                 http.StatusConflict,
	CodeInvalidRoleTag:              http.StatusConflict,
	CodeMissingPermission:           http.StatusForbidden,
	CodeInvalidQueryStringAuthn:     http.StatusForbidden,
	CodeCrossAccount:                http.StatusForbidden,
	CodeRulesEvaluationFailed:       http.StatusForbidden,
	CodeAuthorizationError:          http.StatusForbidden,

	CodeInvalidResource:         http.StatusBadRequest,
	CodeInvalidParameter:        http.StatusBadRequest,
	CodeInvalidUpdate:           http.StatusBadRequest,
	CodeInvalidDurabilityLevel:  http.StatusBadRequest,
	CodeInvalidLink:             http.StatusBadRequest,
	CodeLocationRequired:        http.StatusBadRequest,
	CodeInvalidMaxContentLength: http.StatusBadRequest,
	CodeContentLengthRequired:   http.StatusLengthRequired,
	CodeContentMD5Mismatch:      http.StatusBadRequest,
	CodeBadRequest:              http.StatusBadRequest,
	CodeNotAcceptable:           http.StatusNotAcceptable,
	CodeRangeNotSatisfiable:     http.StatusRequestedRangeNotSatisfiable,

	CodeResourceNotFound:             http.StatusNotFound,
	CodeDirectoryDoesNotExist:        http.StatusNotFound,
	CodeDirectoryNotEmpty:            http.StatusBadRequest,
	CodeDirectoryLimitExceeded:       http.StatusConflict,
	CodeOperationNotAllowedOnDir:     http.StatusBadRequest,
	CodeOperationNotAllowedOnRootDir: http.StatusBadRequest,
	CodeParentNotDirectory:           http.StatusBadRequest,
	CodeEntityAlreadyExists:          http.StatusConflict,
	CodeSourceObjectNotFound:         http.StatusNotFound,
	CodeLinkNotObject:                http.StatusBadRequest,
	CodeConcurrentRequest:            http.StatusConflict,

	CodeMultipartUploadInvalidArgument: http.StatusConflict,
	CodeInvalidMultipartUploadState:    http.StatusConflict,
	CodeMultipartUploadPartNum:         http.StatusConflict,

	CodeNotEnoughSpace:          http.StatusInsufficientStorage,
	CodeMaxContentLengthExceed:  http.StatusRequestEntityTooLarge,
	CodeUploadTimeout:           http.StatusRequestTimeout,
	CodeUploadAbandoned:         499,
	CodeExpectedUpgrade:         http.StatusBadRequest,
	CodeThrottledError:          http.StatusServiceUnavailable,
	CodeServiceUnavailable:      http.StatusServiceUnavailable,
	CodeMethodNotAllowed:        http.StatusMethodNotAllowed,
	CodeQueryParameterForbidden: http.StatusForbidden,
	CodeUnprocessableEntity:     http.StatusUnprocessableEntity,

	CodeInternalError:          http.StatusInternalServerError,
	CodeNotImplemented:         http.StatusNotImplemented,
	CodeSnaplinksDisabled:      http.StatusForbidden,
	CodeSecureTransportRequire: http.StatusForbidden,
}

// Error is the single concrete error shape every component returns.
// It never leaks a stack trace to the client; Cause is logged, not
// serialized.
type Error struct {
	Code    Code
	Status  int
	Message string
	Cause   error

	// RetryAfter is echoed as a Retry-After response header when nonzero
	// (spec.md §5 "SharksExhaustedError ... Retry-After: 30").
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the cause.
func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error for code with message, defaulting Status from the
// taxonomy table. Panics on an unregistered code — that is a programmer
// error, never a runtime condition.
func New(code Code, message string) *Error {
	status, ok := statusByCode[code]
	if !ok {
		panic(fmt.Sprintf("apierrors: unregistered code %q", code))
	}
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap builds an *Error for code, chaining cause for logging. The cause
// is never included in Error() in a way that would be serialized to a
// client; callers must use Message for anything user-visible.
func Wrap(code Code, message string, cause error) *Error {
	err := New(code, message)
	err.Cause = cause
	return err
}

// WithRetryAfter sets e.RetryAfter and returns e for chaining at the call
// site, e.g. apierrors.New(CodeServiceUnavailable, "...").WithRetryAfter(30*time.Second).
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// Internal wraps cause as a 500 InternalError, the catch-all for anything
// unrecognized bubbling out of a handler (spec.md §7).
func Internal(cause error) *Error {
	return Wrap(CodeInternalError, "internal error", cause)
}

// As extracts an *Error from err by walking Unwrap, or returns nil if none
// is present in the chain.
func As(err error) *Error {
	for current := err; current != nil; {
		if e, ok := current.(*Error); ok {
			return e
		}
		u, ok := current.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		current = u.Unwrap()
	}
	return nil
}

// Error-family classes, one per spec.md §7 grouping. These let lower-level
// components (and their tests) check membership with errs.Class.Has the
// same way the teacher's pkg/overlay tests assert against *errs.Class,
// independent of the final wire Code chosen for a given failure.
var (
	IdentityClass  = errs.Class("identity")
	RequestClass   = errs.Class("request")
	NamespaceClass = errs.Class("namespace")
	MPUClass       = errs.Class("mpu")
	TransportClass = errs.Class("transport")
	ServerClass    = errs.Class("server")
)

// Classed wraps cause (built from one of the *Class values above) into an
// *Error carrying code, keeping both the wire taxonomy and the zeebo/errs
// class membership available to callers.
func Classed(class errs.Class, code Code, cause error) *Error {
	return Wrap(code, cause.Error(), class.Wrap(cause))
}

// Body is the JSON shape returned to clients: {code, message}, nothing else.
type Body struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToBody renders e's client-visible body.
func (e *Error) ToBody() Body {
	return Body{Code: e.Code, Message: e.Message}
}
