package model

import "time"

// NoExitCode is reported when the process did not exit on its own.
const NoExitCode = -1

// ExecutionResult is the outcome of running one command.
//
// Success is false whenever the process was forcibly killed, could not be
// spawned, or an I/O error occurred. Stdout and Stderr may be partial when
// the process was killed. A non-zero exit code alone does not clear Success.
type ExecutionResult struct {
	Success  bool          `json:"success"`
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Failed returns an unsuccessful result with no output.
func Failed() ExecutionResult {
	return ExecutionResult{ExitCode: NoExitCode}
}

// Status maps the result onto a history status.
func (r ExecutionResult) Status() string {
	if r.Success {
		return StatusSucceeded
	}
	return StatusFailed
}
