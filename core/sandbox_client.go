package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// rpcTimeout is the per-call budget for sandbox RPCs.
const rpcTimeout = 5 * time.Minute

// MapSandboxStatus translates a sandbox run status into a
// CaseStatus. Accepted/MemoryLimitExceeded/TimeLimitExceeded/
// OutputLimitExceeded pass through unchanged; FileError,
// NonzeroExitStatus and Signalled collapse to RuntimeError.
func MapSandboxStatus(status string) CaseStatus {
	switch status {
	case "Accepted":
		return Accepted
	case "MemoryLimitExceeded":
		return MemoryLimitExceeded
	case "TimeLimitExceeded":
		return TimeLimitExceeded
	case "OutputLimitExceeded":
		return OutputLimitExceeded
	case "FileError", "NonzeroExitStatus", "Signalled":
		return RuntimeError
	case "InternalError":
		return InternalErrorStatus
	default:
		return InternalErrorStatus
	}
}

// FileRef is one copy_in binding: either inline content or a reference
// to a previously cached sandbox artifact.
type FileRef struct {
	Content *string
	FileID  SandboxArtifact
}

// RunSpec is one sandbox command dispatch.
type RunSpec struct {
	Args             []string
	Env              []string
	Stdin            string
	StdoutMax        int
	StderrMax        int
	CPULimitNs       int64
	ClockLimitNs     int64
	MemoryLimitBytes int64
	ProcLimit        int32
	CopyIn           map[string]FileRef
	CopyOut          []string
	CopyOutCached    []string
}

// RunResult is the sandbox's response to a RunSpec.
type RunResult struct {
	Status      string
	ExitStatus  int
	RunTimeNs   int64
	MemoryBytes int64
	Files       map[string]string
	FileIDs     map[string]SandboxArtifact
	Error       string
}

// PreparedProgram is the result of compiling/staging a player program
// inside the sandbox: how to run it, what to copy in, and which
// cached artifacts must be released on teardown.
type PreparedProgram struct {
	RunArgs        []string
	CopyInBindings map[string]FileRef
	CleanupIDs     []SandboxArtifact
}

// CheckerPrepared is a runnable checker/interactor artifact handle.
type CheckerPrepared struct {
	CheckerID SandboxArtifact
	Cleanup   func(ctx context.Context) error
}

// Sandbox wraps the remote sandbox executor's compile/run/file-cache
// RPC.
type Sandbox interface {
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
	RunPair(ctx context.Context, player, interactor RunSpec) (*RunResult, *RunResult, error)
	DeleteFile(ctx context.Context, id SandboxArtifact) error
	CacheInline(ctx context.Context, name, content string) (SandboxArtifact, error)
	PrepareProgram(ctx context.Context, language, sourceText, mainName string) (*PreparedProgram, error)
	PrepareChecker(ctx context.Context, sourceText, testlibIncludePath string) (*CheckerPrepared, error)
	LoadCheckerBlob(ctx context.Context, path string) (*CheckerPrepared, error)
}

// HTTPSandbox calls the sandbox's HTTP RPC (POST /run, DELETE
// /file/<id>), bit-compatible with go-judge.
type HTTPSandbox struct {
	client *http.Client
	base   string
	log    *zap.Logger
}

func NewHTTPSandbox(base string, log *zap.Logger) *HTTPSandbox {
	return &HTTPSandbox{
		client: &http.Client{Timeout: rpcTimeout},
		base:   strings.TrimRight(base, "/"),
		log:    log,
	}
}

// wire shapes, bit-compatible with go-judge's /run payload.

type wireFile struct {
	Name    string  `json:"name,omitempty"`
	Max     int     `json:"max,omitempty"`
	Content *string `json:"content,omitempty"`
	FileID  string  `json:"fileId,omitempty"`
}

type wireCommand struct {
	Args          []string            `json:"args"`
	Env           []string            `json:"env,omitempty"`
	Files         []*wireFile         `json:"files"`
	CPULimit      int64               `json:"cpuLimit"`
	ClockLimit    int64               `json:"clockLimit"`
	MemoryLimit   int64               `json:"memoryLimit"`
	ProcLimit     int32               `json:"procLimit"`
	CopyIn        map[string]wireFile `json:"copyIn,omitempty"`
	CopyOut       []string            `json:"copyOut,omitempty"`
	CopyOutCached []string            `json:"copyOutCached,omitempty"`
}

// wirePipeEndpoint names one fd on one command in a pipeMapping entry.
type wirePipeEndpoint struct {
	Index int `json:"index"`
	Fd    int `json:"fd"`
}

// wirePipeMap connects one command's fd to another's, used for
// interactive-mode player↔interactor dispatch.
type wirePipeMap struct {
	In  wirePipeEndpoint `json:"in"`
	Out wirePipeEndpoint `json:"out"`
}

type wireResult struct {
	Status     string            `json:"status"`
	ExitStatus int               `json:"exitStatus"`
	Time       int64             `json:"time"`
	Memory     int64             `json:"memory"`
	Error      string            `json:"error"`
	Files      map[string]string `json:"files"`
	FileIDs    map[string]string `json:"fileIds"`
}

func toWireFile(f FileRef) wireFile {
	if f.FileID != "" {
		return wireFile{FileID: string(f.FileID)}
	}
	return wireFile{Content: f.Content}
}

func (s *HTTPSandbox) dispatchMany(ctx context.Context, cmds []wireCommand, pipes []wirePipeMap) ([]*RunResult, error) {
	payload := map[string]any{"cmd": cmds}
	if len(pipes) > 0 {
		payload["pipeMapping"] = pipes
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapErr(KindSandboxFailure, err, "marshal sandbox request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, wrapErr(KindSandboxFailure, err, "build sandbox request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, wrapErr(KindSandboxFailure, err, "sandbox run request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, newErr(KindSandboxFailure, "sandbox returned HTTP %d", resp.StatusCode)
	}

	var results []wireResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, wrapErr(KindSandboxFailure, err, "decode sandbox response")
	}
	if len(results) != len(cmds) {
		return nil, newErr(KindSandboxFailure, "sandbox returned %d results for %d commands", len(results), len(cmds))
	}

	out := make([]*RunResult, len(results))
	for i, r := range results {
		fileIDs := make(map[string]SandboxArtifact, len(r.FileIDs))
		for k, v := range r.FileIDs {
			fileIDs[k] = SandboxArtifact(v)
		}
		out[i] = &RunResult{
			Status:      r.Status,
			ExitStatus:  r.ExitStatus,
			RunTimeNs:   r.Time,
			MemoryBytes: r.Memory,
			Files:       r.Files,
			FileIDs:     fileIDs,
			Error:       r.Error,
		}
	}
	return out, nil
}

func (s *HTTPSandbox) dispatch(ctx context.Context, cmd wireCommand) (*RunResult, error) {
	results, err := s.dispatchMany(ctx, []wireCommand{cmd}, nil)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func buildCommand(spec RunSpec) wireCommand {
	files := []*wireFile{
		{Content: &spec.Stdin},
		{Name: "stdout", Max: spec.StdoutMax},
		{Name: "stderr", Max: spec.StderrMax},
	}

	copyIn := make(map[string]wireFile, len(spec.CopyIn))
	for name, ref := range spec.CopyIn {
		copyIn[name] = toWireFile(ref)
	}

	return wireCommand{
		Args:          spec.Args,
		Env:           spec.Env,
		Files:         files,
		CPULimit:      spec.CPULimitNs,
		ClockLimit:    spec.ClockLimitNs,
		MemoryLimit:   spec.MemoryLimitBytes,
		ProcLimit:     spec.ProcLimit,
		CopyIn:        copyIn,
		CopyOut:       spec.CopyOut,
		CopyOutCached: spec.CopyOutCached,
	}
}

func (s *HTTPSandbox) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	return s.dispatch(ctx, buildCommand(spec))
}

// RunPair dispatches a player and an interactor as a single sandbox
// request, wiring the interactor's stdout to the player's stdin and
// the player's stdout to the interactor's stdin. Returns
// (playerResult, interactorResult).
func (s *HTTPSandbox) RunPair(ctx context.Context, player, interactor RunSpec) (*RunResult, *RunResult, error) {
	playerCmd := buildCommand(player)
	interactorCmd := buildCommand(interactor)

	// fds routed through a pipe carry no independent file binding.
	playerCmd.Files[0] = nil  // stdin: fed by interactor's stdout
	playerCmd.Files[1] = nil  // stdout: fed into interactor's stdin
	interactorCmd.Files[0] = nil
	interactorCmd.Files[1] = nil

	pipes := []wirePipeMap{
		{In: wirePipeEndpoint{Index: 0, Fd: 0}, Out: wirePipeEndpoint{Index: 1, Fd: 1}},
		{In: wirePipeEndpoint{Index: 1, Fd: 0}, Out: wirePipeEndpoint{Index: 0, Fd: 1}},
	}

	results, err := s.dispatchMany(ctx, []wireCommand{playerCmd, interactorCmd}, pipes)
	if err != nil {
		return nil, nil, err
	}
	return results[0], results[1], nil
}

func (s *HTTPSandbox) DeleteFile(ctx context.Context, id SandboxArtifact) error {
	if id == "" {
		return nil
	}
	endpoint := fmt.Sprintf("%s/file/%s", s.base, url.PathEscape(string(id)))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("file delete returned status %d for id %s", resp.StatusCode, id)
	}
	return nil
}

// CacheInline issues a no-op run that copies content in and caches it
// out under name, returning the new artifact id.
func (s *HTTPSandbox) CacheInline(ctx context.Context, name, content string) (SandboxArtifact, error) {
	res, err := s.Run(ctx, RunSpec{
		Args:             []string{"/usr/bin/true"},
		CPULimitNs:       nsPerSecond,
		ClockLimitNs:     2 * nsPerSecond,
		MemoryLimitBytes: 64 * bytesPerMiB,
		ProcLimit:        5,
		CopyIn:           map[string]FileRef{name: {Content: &content}},
		CopyOutCached:    []string{name},
	})
	if err != nil {
		return "", err
	}
	if res.Status != "Accepted" {
		return "", newErr(KindSandboxFailure, "cache_inline run not accepted: status=%s", res.Status)
	}
	id, ok := res.FileIDs[name]
	if !ok {
		return "", newErr(KindSandboxFailure, "cache_inline response missing file id for %s", name)
	}
	return id, nil
}

// languagePrep describes how to compile/stage one supported language.
type languagePrep struct {
	sourceName    string
	compileArgs   func(sourceName string) []string
	artifactName  func(sourceName string) string
	runArgs       func(artifactName string) []string
	compileCPUNs  int64
	compileMemB   int64
	needsCompile  bool
}

func languagePrepFor(language, mainName string) (*languagePrep, error) {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "cpp":
		name := firstNonEmpty(mainName, "main.cpp")
		return &languagePrep{
			sourceName: name,
			compileArgs: func(src string) []string {
				return []string{"g++", "-O2", "-pipe", "-std=gnu++17", src, "-o", "a"}
			},
			artifactName: func(string) string { return "a" },
			runArgs:      func(art string) []string { return []string{art} },
			compileCPUNs: 10 * nsPerSecond,
			compileMemB:  512 * bytesPerMiB,
			needsCompile: true,
		}, nil
	case "java":
		name := firstNonEmpty(mainName, "Main.java")
		class := strings.TrimSuffix(name, ".java")
		return &languagePrep{
			sourceName: name,
			compileArgs: func(src string) []string {
				return []string{"javac", src}
			},
			artifactName: func(string) string { return class + ".class" },
			runArgs:      func(string) []string { return []string{"/usr/bin/java", class} },
			compileCPUNs: 10 * nsPerSecond,
			compileMemB:  1024 * bytesPerMiB,
			needsCompile: true,
		}, nil
	case "py", "python", "python3":
		return &languagePrep{
			sourceName:   "main.py",
			artifactName: func(string) string { return "main.py" },
			runArgs:      func(art string) []string { return []string{"/usr/bin/python3", art} },
			needsCompile: false,
		}, nil
	case "pypy":
		return &languagePrep{
			sourceName:   "main.py",
			artifactName: func(string) string { return "main.py" },
			runArgs:      func(art string) []string { return []string{"/usr/bin/pypy3", art} },
			needsCompile: false,
		}, nil
	default:
		return nil, &Error{Kind: KindCompileError, Message: "unsupported language"}
	}
}

func (s *HTTPSandbox) PrepareProgram(ctx context.Context, language, sourceText, mainName string) (*PreparedProgram, error) {
	prep, err := languagePrepFor(language, mainName)
	if err != nil {
		return nil, err
	}

	artifact := prep.artifactName(prep.sourceName)

	if !prep.needsCompile {
		id, err := s.CacheInline(ctx, artifact, sourceText)
		if err != nil {
			return nil, wrapErr(KindSandboxFailure, err, "cache interpreted source")
		}
		return &PreparedProgram{
			RunArgs:        prep.runArgs(artifact),
			CopyInBindings: map[string]FileRef{artifact: {FileID: id}},
			CleanupIDs:     []SandboxArtifact{id},
		}, nil
	}

	res, err := s.Run(ctx, RunSpec{
		Args:             prep.compileArgs(prep.sourceName),
		Env:              []string{"PATH=/usr/bin:/bin"},
		StdoutMax:        10240,
		StderrMax:        10240,
		CPULimitNs:       prep.compileCPUNs,
		ClockLimitNs:     2 * prep.compileCPUNs,
		MemoryLimitBytes: prep.compileMemB,
		ProcLimit:        50,
		CopyIn:           map[string]FileRef{prep.sourceName: {Content: &sourceText}},
		CopyOutCached:    []string{artifact},
	})
	if err != nil {
		return nil, wrapErr(KindSandboxFailure, err, "compile request failed")
	}
	if res.Status != "Accepted" || res.ExitStatus != 0 {
		stderr := res.Files["stderr"]
		return nil, &Error{Kind: KindCompileError, Message: stderr}
	}

	id, ok := res.FileIDs[artifact]
	if !ok {
		return nil, newErr(KindSandboxFailure, "compile response missing artifact %s", artifact)
	}

	return &PreparedProgram{
		RunArgs:        prep.runArgs(artifact),
		CopyInBindings: map[string]FileRef{artifact: {FileID: id}},
		CleanupIDs:     []SandboxArtifact{id},
	}, nil
}

func (s *HTTPSandbox) PrepareChecker(ctx context.Context, sourceText, testlibIncludePath string) (*CheckerPrepared, error) {
	const src = "chk.cc"
	res, err := s.Run(ctx, RunSpec{
		Args:             []string{"g++", "-O2", "-pipe", "-std=gnu++17", "-I", testlibIncludePath, src, "-o", "chk"},
		Env:              []string{"PATH=/usr/bin:/bin"},
		StdoutMax:        10240,
		StderrMax:        10240,
		CPULimitNs:       10 * nsPerSecond,
		ClockLimitNs:     20 * nsPerSecond,
		MemoryLimitBytes: 512 * bytesPerMiB,
		ProcLimit:        50,
		CopyIn:           map[string]FileRef{src: {Content: &sourceText}},
		CopyOutCached:    []string{"chk"},
	})
	if err != nil {
		return nil, wrapErr(KindSandboxFailure, err, "checker compile request failed")
	}
	if res.Status != "Accepted" || res.ExitStatus != 0 {
		return nil, newErr(KindCompileError, "checker compile failed: %s", res.Files["stderr"])
	}
	id, ok := res.FileIDs["chk"]
	if !ok {
		return nil, newErr(KindSandboxFailure, "checker compile response missing artifact")
	}
	return &CheckerPrepared{
		CheckerID: id,
		Cleanup:   func(ctx context.Context) error { return s.DeleteFile(ctx, id) },
	}, nil
}

func (s *HTTPSandbox) LoadCheckerBlob(ctx context.Context, path string) (*CheckerPrepared, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(KindIOError, err, "read cached checker blob %s", path)
	}
	content := string(data)
	id, err := s.CacheInline(ctx, "chk", content)
	if err != nil {
		return nil, wrapErr(KindSandboxFailure, err, "upload cached checker blob")
	}
	return &CheckerPrepared{
		CheckerID: id,
		Cleanup:   func(ctx context.Context) error { return s.DeleteFile(ctx, id) },
	}, nil
}
