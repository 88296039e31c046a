// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeExtensionLoadNotFound        Code = "extension.load.not_found"
	CodeExtensionVersionNotFound     Code = "extension.version.not_found"
	CodeExtensionVersionMismatch     Code = "extension.version.mismatch"
	CodeExtensionVersionInvalid      Code = "extension.version.invalid"
	CodeExtensionManifestInvalid     Code = "extension.manifest.invalid"
	CodeExtensionEntryPointNotFound  Code = "extension.entry_point.not_found"
	CodeExtensionActionUnsupported   Code = "extension.action.unsupported"
	CodeExtensionRuntimeFailure      Code = "extension.runtime.failure"
	CodeExtensionRuntimeTimeout      Code = "extension.runtime.timeout"
	CodeExtensionDataDirFailure      Code = "extension.data_dir.failure"
	CodeExtensionPromptInputNotFound Code = "extension.prompt.input.not_found"

	CodeSandboxAccessDenied Code = "sandbox.access.denied"
	CodeSandboxPathInvalid  Code = "sandbox.path.invalid"
	CodeSandboxReadFailure  Code = "sandbox.read.failure"

	CodePlanValidateOutOfSandbox   Code = "plan.validate.out_of_sandbox"
	CodePlanValidateConflict       Code = "plan.validate.conflict"
	CodePlanValidateInvalid        Code = "plan.validate.invalid"
	CodePlanStateTransitionInvalid Code = "plan.state.transition.invalid"
	CodePlanApplyFailure           Code = "plan.apply.failure"
	CodePlanApplyDirtyTree         Code = "plan.apply.dirty_tree"
	CodePlanRenderFailure          Code = "plan.render.failure"
	CodePlanAcceptDenied           Code = "plan.accept.denied"

	CodeLedgerDatabaseFailure    Code = "ledger.database.failure"
	CodeLedgerBackendUnsupported Code = "ledger.backend.unsupported"
	CodeLedgerInvalidInput       Code = "ledger.record.invalid_input"
	CodeLedgerVersionNotFound    Code = "ledger.version.not_found"

	CodeProjectManifestNotFound      Code = "project.manifest.not_found"
	CodeProjectManifestInvalidFormat Code = "project.manifest.invalid_format"
	CodeProjectManifestWriteFailure  Code = "project.manifest.write.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeVCSStatusFailure Code = "vcs.status.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldExtension(value string) Attr {
	return Field("extension", value)
}

func FieldVersion(value string) Attr {
	return Field("version", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldCommand(value string) Attr {
	return Field("command", value)
}

// FieldProposal identifies a proposal by its position in a plan.
func FieldProposal(index int) Attr {
	return Field("proposal", index)
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
		code = CodeInternalFailure
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
	r := reason(CodeOf(err))
	return r == "conflict" || r == "mismatch"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsDenied(err error) bool {
	r := reason(CodeOf(err))
	return r == "denied" || r == "out_of_sandbox" || r == "dirty_tree"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

// Exit codes returned by the CLI. They follow sysexits(3) where one fits.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 64
	ExitDataErr  = 65
	ExitNoInput  = 66
	ExitSoftware = 70
	ExitIOErr    = 74
	ExitTempFail = 75
	ExitNoPerm   = 77
	ExitConfig   = 78
)

// ExitCode maps an error onto a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case HasCode(err, CodeCLIInputInvalid):
		return ExitUsage
	case HasCode(err, CodePlanApplyFailure):
		return ExitIOErr
	case HasCode(err, CodeExtensionRuntimeFailure):
		return ExitSoftware
	case strings.HasPrefix(string(CodeOf(err)), "config."):
		return ExitConfig
	case IsNotFound(err):
		return ExitNoInput
	case IsDenied(err):
		return ExitNoPerm
	case IsConflict(err), IsInvalidInput(err):
		return ExitDataErr
	case IsTimeout(err):
		return ExitTempFail
	default:
		return ExitFailure
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	for _, err := range errs {
		if code := CodeOf(err); code != "" {
			return oops.Code(code).Wrap(joined)
		}
	}
	return oops.Code(CodeInternalFailure).Wrap(joined)
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
