package engine

import "errors"

var (
	// ErrBackendUnavailable means the engine has no usable backend; call
	// Initialize again.
	ErrBackendUnavailable = errors.New("proving backend unavailable")
	// ErrCompilation reports an invalid circuit source.
	ErrCompilation = errors.New("circuit compilation failed")
	// ErrWitness reports bad inputs or unsatisfied circuit constraints.
	ErrWitness = errors.New("witness computation failed")
	// ErrProving reports a setup or proof generation failure. Retryable.
	ErrProving = errors.New("proof generation failed")
)

// IsRetryable reports whether err is worth retrying unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProving)
}
