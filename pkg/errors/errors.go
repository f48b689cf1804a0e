// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error. The last dotted
// segment is the reason used for classification.
type Code string

const (
	CodeStoreSchemaMismatch      Code = "store.schema.mismatch"
	CodeStoreTableNotFound       Code = "store.table.not_found"
	CodeStoreIncidentNotFound    Code = "store.incident.not_found"
	CodeStoreCursorNotFound      Code = "store.cursor.not_found"
	CodeStoreIncidentConflict    Code = "store.incident.conflict"
	CodeStoreDatabaseFailure     Code = "store.database.failure"
	CodeStoreBackendUnsupported  Code = "store.backend.unsupported"
	CodeStoreInvalidInput        Code = "store.invalid_input"
	CodeQueryRequestUnsupported  Code = "query.request.unsupported"
	CodeQueryRequestInvalid      Code = "query.request.invalid"
	CodeAnalyzerResponseInvalid  Code = "analyzer.response.invalid"
	CodeAnalyzerUpstreamFailure  Code = "analyzer.upstream.failure"
	CodeAnalyzerTimeout          Code = "analyzer.timeout"
	CodeAnalyzerConfigInvalid    Code = "analyzer.config.invalid"
	CodeNotifyDeliveryFailure    Code = "notify.delivery.failure"
	CodeNotifyConfigInvalid      Code = "notify.config.invalid"
	CodeDetectLoopFailure        Code = "detect.loop.failure"
	CodeDetectConfigInvalid      Code = "detect.config.invalid"
	CodeProviderRequestInvalid   Code = "provider.request.invalid"
	CodeProviderUpstreamFailure  Code = "provider.upstream.failure"
	CodeProviderNotFound         Code = "provider.registry.not_found"
	CodeConfigLoadReadFailure    Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat Code = "config.parse.invalid_format"
	CodeConfigValidateInvalid    Code = "config.validate.invalid_value"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLIServerNotRunning Code = "cli.server.not_running"
	CodeCLIRequestFailure   Code = "cli.request.failure"
	CodeCLIResponseInvalid  Code = "cli.response.invalid"
	CodeCLISetupFailure     Code = "cli.setup.failure"
	CodeCLIInputInvalid     Code = "cli.input.invalid"

	CodeSecretInvalidInput   Code = "secret.invalid_input"
	CodeSecretNotFound       Code = "secret.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldTable(value string) Attr {
	return Field("table", value)
}

func FieldPipeline(value string) Attr {
	return Field("pipeline", value)
}

func FieldDedupeKey(value string) Attr {
	return Field("dedupe_key", value)
}

func FieldIncidentID(value string) Attr {
	return Field("incident_id", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsSchemaMismatch reports an embedding dimension conflict. Callers must treat
// it as fatal for the affected table.
func IsSchemaMismatch(err error) bool {
	return reason(CodeOf(err)) == "mismatch"
}

// IsTransient reports a store I/O failure the caller may retry.
func IsTransient(err error) bool {
	return HasCode(err, CodeStoreDatabaseFailure)
}

// IsMalformedUpstream reports an analyzer response that could not be used,
// including upstream failures and timeouts.
func IsMalformedUpstream(err error) bool {
	code := CodeOf(err)
	return strings.HasPrefix(string(code), "analyzer.") && code != CodeAnalyzerConfigInvalid
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err), IsSchemaMismatch(err):
		return http.StatusConflict
	case IsInvalidInput(err), HasCode(err, CodeQueryRequestUnsupported):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	case IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return JoinCode(CodeServerInternalFailure, errs...)
}

// JoinCode joins errs under code. Nil errors are discarded; it returns nil
// when none remain.
func JoinCode(code Code, errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(code).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
