// Package apierr defines DroneHub's stable, machine-readable error
// taxonomy (spec §7) and the HTTP status mapping for it. Every C1–C7
// failure that crosses a component boundary is wrapped in an *Error so the
// HTTP API (C8) can render {ok:false, error, code, diagnostics} without
// inspecting error strings.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeNameConflict       Code = "name_conflict"
	CodeInvalidName        Code = "invalid_name"
	CodeNotFound           Code = "not_found"
	CodeStateViolation     Code = "state_violation"
	CodeEngineFailure      Code = "engine_failure"
	CodeTimeout            Code = "timeout"
	CodeSeedMismatch       Code = "seed_mismatch"
	CodePatchApplyConflict Code = "patch_apply_conflict"
	CodePatchApplyError    Code = "patch_apply_error"
	CodeBlockedConflict    Code = "blocked_conflict"
	CodeBlockedPolicy      Code = "blocked_policy"
	CodeAuthFailure        Code = "auth_failure"
	CodeUpstreamHTTP       Code = "upstream_http"
	CodeInternal           Code = "internal"
)

// maxMessageBytes bounds the trimmed stderr tail carried in user-visible
// messages, per spec §7 ("stderr tail trimmed to 2 KiB").
const maxMessageBytes = 2048

// Error is DroneHub's uniform error envelope. It implements the standard
// error interface and supports errors.As/errors.Unwrap so call sites can
// recover the code without string matching.
type Error struct {
	Code        Code
	Message     string
	Diagnostics map[string]any
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error with the given code and message, trimming the
// message to the 2 KiB ceiling spec §7 requires for stderr tails.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: trim(message)}
}

// Wrap builds an *Error that carries an underlying cause, preserving it
// for errors.Unwrap/errors.Is chains while still presenting a stable code.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: trim(message), cause: cause}
}

// WithDiagnostics attaches structured diagnostic data (e.g. conflictFiles)
// and returns the receiver for chaining.
func (e *Error) WithDiagnostics(d map[string]any) *Error {
	e.Diagnostics = d
	return e
}

func trim(s string) string {
	if len(s) <= maxMessageBytes {
		return s
	}
	return s[len(s)-maxMessageBytes:]
}

// As extracts an *Error from err, if present anywhere in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps a Code to the HTTP status the spec's §6.2/§7 require.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNameConflict, CodeStateViolation:
		return http.StatusConflict
	case CodeInvalidName:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamHTTP:
		return http.StatusBadGateway
	case CodeAuthFailure:
		return http.StatusUnauthorized
	case CodeBlockedConflict, CodeBlockedPolicy, CodePatchApplyConflict, CodePatchApplyError:
		return http.StatusConflict
	case CodeSeedMismatch, CodeEngineFailure, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
