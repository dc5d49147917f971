// Package svcerr implements the internal-error taxonomy shared by every
// session component: a Stage/Code pair wrapping the underlying cause, so the
// final log line names where a failure originated, without ever leaking
// those details to the peer. An error is wrapped once, where it originates;
// callers return it unchanged, so no entry is added per call site.
package svcerr

import "fmt"

type Stage string

const (
	StageIO        Stage = "io"
	StageHandshake Stage = "handshake"
	StageFrame     Stage = "frame"
	StageStore     Stage = "store"
	StageBan       Stage = "ban"
	StageSession   Stage = "session"
	StageConfig    Stage = "config"
)

type Code string

const (
	CodeTimeout          Code = "timeout"
	CodeRemoteClosed     Code = "remote_closed"
	CodeShortWrite       Code = "short_write"
	CodeTooLarge         Code = "too_large"
	CodeDecodeFailed     Code = "decode_failed"
	CodeEncodeFailed     Code = "encode_failed"
	CodeTagMismatch      Code = "tag_mismatch"
	CodeZeroSecret       Code = "zero_secret"
	CodeQueryFailed      Code = "query_failed"
	CodeExecFailed       Code = "exec_failed"
	CodePersistFailed    Code = "persist_failed"
	CodeInvalidConfig    Code = "invalid_config"
	CodeRandomFailed     Code = "random_failed"
)

// Error is an internal error: environmental or programming failure never
// surfaced to the wire peer.
type Error struct {
	Stage Stage
	Code  Code
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Stage, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an internal error, attaching the stage/code that identifies
// where in the pipeline it occurred.
func Wrap(stage Stage, code Code, err error) error {
	return &Error{Stage: stage, Code: code, Err: err}
}
