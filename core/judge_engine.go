package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pollInterval = 50 * time.Millisecond

// JudgeEngine is the submission intake API, worker pool, and
// per-submission pipeline.
type JudgeEngine struct {
	cfg     Config
	sandbox Sandbox
	store   *SubmissionStore
	cache   *VerdictCache
	queue   *Queue
	log     *zap.Logger

	wg sync.WaitGroup
}

func NewJudgeEngine(cfg Config, sandbox Sandbox, store *SubmissionStore, cache *VerdictCache, log *zap.Logger) *JudgeEngine {
	return &JudgeEngine{
		cfg:     cfg,
		sandbox: sandbox,
		store:   store,
		cache:   cache,
		queue:   NewQueue(),
		log:     log,
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (e *JudgeEngine) Start(ctx context.Context) {
	n := e.cfg.WorkerCount
	if n <= 0 {
		n = 4
	}
	for i := 0; i < n; i++ {
		e.wg.Add(1)
		go func(worker int) {
			defer e.wg.Done()
			e.workerLoop(ctx, worker)
		}(i)
	}
}

// Wait blocks until every worker goroutine has exited (after ctx is
// cancelled).
func (e *JudgeEngine) Wait() {
	e.wg.Wait()
}

// Submit accepts a new submission.
func (e *JudgeEngine) Submit(pid, language, code string) (int64, error) {
	if pid == "" || language == "" || code == "" {
		return 0, newErr(KindInvalidSubmission, "pid, language and code are all required")
	}

	sid, err := e.store.NextID()
	if err != nil {
		return 0, err
	}

	sub := Submission{Sid: sid, Pid: pid, Language: language, SourceText: code, EnqueuedAt: time.Now()}

	e.cache.Publish(sid, QueuedVerdict())

	if err := e.store.EnsureSubDir(sid); err != nil {
		return 0, wrapErr(KindIOError, err, "create submission directory for sid %d", sid)
	}

	job := Job{Sid: sid, Pid: pid, Language: language}
	if e.queue.Len() >= e.cfg.QueueSpillThreshold {
		if err := e.store.WriteSource(sid, code); err != nil {
			return 0, wrapErr(KindIOError, err, "spill source for sid %d", sid)
		}
	} else {
		job.Code = &code
	}
	e.queue.Push(job)

	if err := e.store.WriteMeta(sub); err != nil {
		e.log.Error("write submission metadata failed", zap.Int64("sid", sid), zap.Error(err))
	}

	return sid, nil
}

// GetResult returns the verdict for sid: the in-memory cache first
// (consuming terminal entries), falling back to the on-disk archive.
func (e *JudgeEngine) GetResult(sid int64) (Verdict, bool, error) {
	if v, ok := e.cache.Get(sid); ok {
		return v, true, nil
	}
	return e.store.ReadResult(sid)
}

// ClearResults wipes the in-memory verdict cache only.
func (e *JudgeEngine) ClearResults() {
	e.cache.Clear()
}

// Reset runs the full reset protocol: counter restart, submissions
// tree wipe, and cache clear. Callers wanting a quiesced queue should
// refuse resets while queue length > 0; the core does not enforce
// that itself, so in-flight workers may still write result.json into
// the fresh tree.
func (e *JudgeEngine) Reset() error {
	e.cache.Clear()
	if err := e.store.Reset(); err != nil {
		return err
	}
	return EmptyTree(e.cfg.SubmissionsRoot)
}

func (e *JudgeEngine) workerLoop(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, ok := e.queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		e.processJob(ctx, job)
	}
}

func (e *JudgeEngine) processJob(ctx context.Context, job Job) {
	traceID := uuid.NewString()
	log := e.log.With(zap.Int64("sid", job.Sid), zap.String("pid", job.Pid), zap.String("trace_id", traceID))

	var cleanupIDs []SandboxArtifact
	var checkerCleanup func(context.Context) error
	var interactorCleanup func(context.Context) error

	defer func() {
		for _, id := range cleanupIDs {
			if err := e.sandbox.DeleteFile(ctx, id); err != nil {
				log.Warn("artifact cleanup failed", zap.String("artifact", string(id)), zap.Error(err))
			}
		}
		if checkerCleanup != nil {
			if err := checkerCleanup(ctx); err != nil {
				log.Warn("checker cleanup failed", zap.Error(err))
			}
		}
		if interactorCleanup != nil {
			if err := interactorCleanup(ctx); err != nil {
				log.Warn("interactor cleanup failed", zap.Error(err))
			}
		}
	}()

	code, err := e.materializeSource(job)
	if err != nil {
		e.fail(job.Sid, err, log)
		return
	}

	problem, err := LoadProblem(e.cfg, job.Pid)
	if err != nil {
		e.fail(job.Sid, err, log)
		return
	}

	prepared, err := e.sandbox.PrepareProgram(ctx, job.Language, code, problem.MainName)
	if err != nil {
		e.fail(job.Sid, err, log)
		return
	}
	cleanupIDs = append(cleanupIDs, prepared.CleanupIDs...)

	checker, err := PrepareChecker(ctx, e.sandbox, e.cfg, problem, problem.CheckerName)
	if err != nil {
		e.fail(job.Sid, err, log)
		return
	}
	checkerCleanup = checker.Cleanup

	var interactor *CheckerPrepared
	if problem.Type == ProblemInteractive {
		interactor, err = PrepareChecker(ctx, e.sandbox, e.cfg, problem, problem.InteractorName)
		if err != nil {
			e.fail(job.Sid, err, log)
			return
		}
		interactorCleanup = interactor.Cleanup
	}

	var cases []CaseResult
	for _, c := range problem.Cases {
		var cr CaseResult
		if problem.Type == ProblemInteractive {
			cr, err = judgeCaseInteractive(ctx, e.sandbox, e.cfg, prepared, interactor.CheckerID, problem, c)
		} else {
			cr, err = judgeCase(ctx, e.sandbox, e.cfg, prepared, checker.CheckerID, problem, c)
		}
		if err != nil {
			e.fail(job.Sid, err, log)
			return
		}
		cases = append(cases, cr)
		log.Info("case judged", zap.Int("case_index", len(cases)-1), zap.String("status", string(cr.Status)),
			zap.String("memory", humanBytes(cr.MemoryBytes)))
		if !cr.Ok {
			break
		}
	}

	passed := len(cases) == len(problem.Cases)
	for _, cr := range cases {
		if !cr.Ok {
			passed = false
		}
	}
	var result CaseStatus
	if len(cases) > 0 {
		result = cases[len(cases)-1].Status
	} else {
		result = Accepted
	}

	verdict := DoneVerdict(passed, result, cases)
	// result.json lands before the cache entry becomes consumable, so
	// a consumed read always has the disk fallback to fall through to.
	if err := e.store.WriteResult(job.Sid, verdict); err != nil {
		log.Error("persist result failed", zap.Error(err))
	}
	e.cache.Publish(job.Sid, verdict)
}

func (e *JudgeEngine) materializeSource(job Job) (string, error) {
	if job.Code != nil {
		if err := e.store.WriteSource(job.Sid, *job.Code); err != nil {
			return "", wrapErr(KindIOError, err, "archive source for sid %d", job.Sid)
		}
		return *job.Code, nil
	}
	return e.store.ReadSource(job.Sid)
}

func (e *JudgeEngine) fail(sid int64, err error, log *zap.Logger) {
	log.Error("submission failed", zap.Error(err))
	verdict := ErrVerdict(err.Error())
	if werr := e.store.WriteResult(sid, verdict); werr != nil {
		log.Error("persist error verdict failed", zap.Error(werr))
	}
	e.cache.Publish(sid, verdict)
}

// judgeCase runs one case of a default-type problem.
func judgeCase(ctx context.Context, sandbox Sandbox, cfg Config, prepared *PreparedProgram, checkerID SandboxArtifact, problem *Problem, c Case) (CaseResult, error) {
	input, err := ReadTestFile(cfg, problem.Pid, c.InputFilename)
	if err != nil {
		return CaseResult{}, err
	}
	answerName := ResolveAnswerFilename(cfg, problem.Pid, c.AnswerFilename)
	answer, err := ReadTestFile(cfg, problem.Pid, answerName)
	if err != nil {
		return CaseResult{}, err
	}

	runRes, err := sandbox.Run(ctx, RunSpec{
		Args:             prepared.RunArgs,
		CopyIn:           prepared.CopyInBindings,
		Stdin:            input,
		StdoutMax:        128 * bytesPerMiB,
		StderrMax:        1 * bytesPerMiB,
		CPULimitNs:       c.TimeNs,
		ClockLimitNs:     2 * c.TimeNs,
		MemoryLimitBytes: c.MemoryBytes,
		ProcLimit:        50,
	})
	if err != nil {
		return CaseResult{Ok: false, Status: InternalErrorStatus, Msg: err.Error()}, nil
	}
	if runRes.Status != "Accepted" {
		return CaseResult{
			Ok:          false,
			Status:      MapSandboxStatus(runRes.Status),
			TimeNs:      runRes.RunTimeNs,
			MemoryBytes: runRes.MemoryBytes,
			Msg:         runRes.Files["stderr"],
		}, nil
	}

	programStdout := runRes.Files["stdout"]
	chkRes, err := sandbox.Run(ctx, RunSpec{
		Args: []string{"chk", "in.txt", "out.txt", "ans.txt"},
		CopyIn: map[string]FileRef{
			"chk":     {FileID: checkerID},
			"in.txt":  {Content: &input},
			"out.txt": {Content: &programStdout},
			"ans.txt": {Content: &answer},
		},
		StdoutMax:        1 * bytesPerMiB,
		StderrMax:        1 * bytesPerMiB,
		CPULimitNs:       2 * nsPerSecond,
		ClockLimitNs:     4 * nsPerSecond,
		MemoryLimitBytes: 256 * bytesPerMiB,
		ProcLimit:        10,
	})
	if err != nil {
		return CaseResult{Ok: false, Status: InternalErrorStatus, TimeNs: runRes.RunTimeNs, MemoryBytes: runRes.MemoryBytes, Msg: err.Error()}, nil
	}

	ok := chkRes.Status == "Accepted" && chkRes.ExitStatus == 0
	status := WrongAnswer
	if ok {
		status = Accepted
	}
	msg := chkRes.Files["stdout"]
	if msg == "" {
		msg = chkRes.Files["stderr"]
	}
	return CaseResult{Ok: ok, Status: status, TimeNs: runRes.RunTimeNs, MemoryBytes: runRes.MemoryBytes, Msg: msg}, nil
}

// judgeCaseInteractive runs one case of an interactive problem: the
// player and interactor are dispatched together, piped stdin↔stdout.
func judgeCaseInteractive(ctx context.Context, sandbox Sandbox, cfg Config, prepared *PreparedProgram, interactorID SandboxArtifact, problem *Problem, c Case) (CaseResult, error) {
	input, err := ReadTestFile(cfg, problem.Pid, c.InputFilename)
	if err != nil {
		return CaseResult{}, err
	}
	answerName := ResolveAnswerFilename(cfg, problem.Pid, c.AnswerFilename)
	answer, err := ReadTestFile(cfg, problem.Pid, answerName)
	if err != nil {
		return CaseResult{}, err
	}

	playerSpec := RunSpec{
		Args:             prepared.RunArgs,
		CopyIn:           prepared.CopyInBindings,
		StdoutMax:        128 * bytesPerMiB,
		StderrMax:        1 * bytesPerMiB,
		CPULimitNs:       c.TimeNs,
		ClockLimitNs:     2 * c.TimeNs,
		MemoryLimitBytes: c.MemoryBytes,
		ProcLimit:        50,
	}
	interactorSpec := RunSpec{
		Args: []string{"interactor", "in.txt", "ans.txt"},
		CopyIn: map[string]FileRef{
			"interactor": {FileID: interactorID},
			"in.txt":     {Content: &input},
			"ans.txt":    {Content: &answer},
		},
		StdoutMax:        1 * bytesPerMiB,
		StderrMax:        1 * bytesPerMiB,
		CPULimitNs:       2 * nsPerSecond,
		ClockLimitNs:     4 * nsPerSecond,
		MemoryLimitBytes: 256 * bytesPerMiB,
		ProcLimit:        10,
	}

	playerRes, interactorRes, err := sandbox.RunPair(ctx, playerSpec, interactorSpec)
	if err != nil {
		return CaseResult{Ok: false, Status: InternalErrorStatus, Msg: err.Error()}, nil
	}
	if playerRes.Status != "Accepted" {
		return CaseResult{
			Ok:          false,
			Status:      MapSandboxStatus(playerRes.Status),
			TimeNs:      playerRes.RunTimeNs,
			MemoryBytes: playerRes.MemoryBytes,
			Msg:         playerRes.Files["stderr"],
		}, nil
	}

	ok := interactorRes.Status == "Accepted" && interactorRes.ExitStatus == 0
	status := WrongAnswer
	if ok {
		status = Accepted
	}
	msg := interactorRes.Files["stdout"]
	if msg == "" {
		msg = interactorRes.Files["stderr"]
	}
	return CaseResult{Ok: ok, Status: status, TimeNs: playerRes.RunTimeNs, MemoryBytes: playerRes.MemoryBytes, Msg: msg}, nil
}
