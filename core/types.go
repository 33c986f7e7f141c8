package core

import "time"

// CaseStatus is the adjudicated outcome of a single test case. Wire
// spelling matches the sandbox's own run-status strings where they
// pass through unchanged, and the checker's Accepted/WrongAnswer
// adjudication otherwise.
type CaseStatus string

const (
	Accepted            CaseStatus = "Accepted"
	WrongAnswer         CaseStatus = "WrongAnswer"
	TimeLimitExceeded   CaseStatus = "TimeLimitExceeded"
	MemoryLimitExceeded CaseStatus = "MemoryLimitExceeded"
	RuntimeError        CaseStatus = "RuntimeError"
	CompileErrorStatus  CaseStatus = "CompileError" // surfaced as a submission-level Error, never inside Verdict.Cases
	OutputLimitExceeded CaseStatus = "OutputLimitExceeded"
	InternalErrorStatus CaseStatus = "InternalError"
)

// ProblemType selects the execution discipline for a problem.
type ProblemType string

const (
	ProblemDefault     ProblemType = "default"
	ProblemInteractive ProblemType = "interactive"
)

// Case is one concrete (input, expected-answer, limits) triple,
// flattened out of a problem's subtask list by the Problem Loader.
type Case struct {
	SubtaskIndex   int
	InputFilename  string
	AnswerFilename string
	TimeNs         int64
	MemoryBytes    int64
}

// Problem is the loaded, flattened execution plan for a pid.
type Problem struct {
	Pid            string
	ProblemDir     string
	Type           ProblemType
	Cases          []Case
	CheckerName    string
	InteractorName string // from config; always set when Type == ProblemInteractive
	MainName       string // player source filename override, empty = language default
	TimeNs         int64  // problem-wide default
	MemoryBytes    int64  // problem-wide default
}

// Submission is the intake record for one judged program.
type Submission struct {
	Sid         int64
	Pid         string
	Language    string
	SourceText  string
	EnqueuedAt  time.Time
}

// CaseResult is the outcome of judging a single case.
type CaseResult struct {
	Ok          bool       `json:"ok"`
	Status      CaseStatus `json:"status"`
	TimeNs      int64      `json:"time_ns"`
	MemoryBytes int64      `json:"memory_bytes"`
	Msg         string     `json:"msg,omitempty"`
}

// VerdictState discriminates the Verdict variant.
type VerdictState string

const (
	VerdictQueued VerdictState = "queued"
	VerdictDone   VerdictState = "done"
	VerdictError  VerdictState = "error"
)

// Verdict is the terminal (or in-flight) record of a submission's
// evaluation. JSON serialization keeps a flat shape: a "status"
// discriminator plus state-specific fields, so a reader that only
// cares about "status" never needs to branch on a nested variant.
type Verdict struct {
	Status  VerdictState `json:"status"`
	Passed  bool         `json:"passed"`
	Result  CaseStatus   `json:"result,omitempty"`
	Cases   []CaseResult `json:"cases,omitempty"`
	Message string       `json:"error,omitempty"`
}

// QueuedVerdict is the verdict published at intake time.
func QueuedVerdict() Verdict {
	return Verdict{Status: VerdictQueued}
}

// DoneVerdict assembles the terminal verdict for a submission that
// ran to completion (possibly failing a case along the way).
func DoneVerdict(passed bool, result CaseStatus, cases []CaseResult) Verdict {
	return Verdict{Status: VerdictDone, Passed: passed, Result: result, Cases: cases}
}

// ErrVerdict assembles the terminal verdict for a submission whose
// pipeline aborted before producing case results.
func ErrVerdict(message string) Verdict {
	return Verdict{Status: VerdictError, Message: message}
}

// SandboxArtifact is an opaque handle to a file held in the sandbox's
// content cache. Owned by whoever requested it; must be released via
// Sandbox.DeleteFile when no longer needed.
type SandboxArtifact string
