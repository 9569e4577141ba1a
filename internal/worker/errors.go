package worker

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxErrorMessage bounds the error message reported for a failed job.
const MaxErrorMessage = 512

// ErrorKind classifies what made a job fail.
type ErrorKind string

const (
	KindAnalysis     ErrorKind = "analysis"
	KindProvisioning ErrorKind = "provisioning"
	KindSink         ErrorKind = "sink"
	KindInternal     ErrorKind = "internal"
)

var (
	// ErrInvalidMessage is returned for queue messages missing a job id or repository.
	ErrInvalidMessage = errors.New("invalid job message")
	// ErrInvalidTransition marks a state change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrWorkloadFailed is wrapped when a provisioned workload ends in the failed status.
	ErrWorkloadFailed = errors.New("workload failed")
)

// StageError is the single error type that fails a job.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage string, kind ErrorKind, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
