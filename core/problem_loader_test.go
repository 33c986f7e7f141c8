package core

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProblem(t *testing.T, root, pid, configYAML string, testdata map[string]string) {
	t.Helper()
	dir := filepath.Join(root, pid)
	if err := os.MkdirAll(filepath.Join(dir, "testdata"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config error: %v", err)
	}
	for _, src := range []string{"chk.cc", "interactor.cc"} {
		if err := os.WriteFile(filepath.Join(dir, src), []byte("// testlib checker stub\n"), 0o644); err != nil {
			t.Fatalf("write %s error: %v", src, err)
		}
	}
	for name, content := range testdata {
		if err := os.WriteFile(filepath.Join(dir, "testdata", name), []byte(content), 0o644); err != nil {
			t.Fatalf("write testdata %s error: %v", name, err)
		}
	}
}

func TestLoadProblemNCasesSchema(t *testing.T) {
	root := t.TempDir()
	writeProblem(t, root, "a", `
type: default
time: 1s
memory: 256m
subtasks:
  - n_cases: 2
  - n_cases: 1
`, nil)

	p, err := LoadProblem(Config{ProblemsRoot: root}, "a")
	if err != nil {
		t.Fatalf("LoadProblem error: %v", err)
	}
	if len(p.Cases) != 3 {
		t.Fatalf("len(Cases) = %d, want 3", len(p.Cases))
	}
	want := []string{"1.in", "2.in", "3.in"}
	for i, c := range p.Cases {
		if c.InputFilename != want[i] {
			t.Errorf("case %d input = %s, want %s (cross-subtask index continuation)", i, c.InputFilename, want[i])
		}
		if c.AnswerFilename != want[i][:1]+".ans" {
			t.Errorf("case %d answer = %s, want default .ans suffix", i, c.AnswerFilename)
		}
	}
	if p.Cases[2].SubtaskIndex != 1 {
		t.Errorf("third case subtask index = %d, want 1", p.Cases[2].SubtaskIndex)
	}
	if p.CheckerName != defaultCheckerName {
		t.Errorf("CheckerName = %s, want default %s", p.CheckerName, defaultCheckerName)
	}
}

func TestLoadProblemExplicitCasesSchema(t *testing.T) {
	root := t.TempDir()
	writeProblem(t, root, "b", `
type: default
checker: chk.cc
subtasks:
  - cases:
      - input: one.in
        output: one.ans
        time: 2s
      - input: two.in
        output: two.ans
`, nil)

	p, err := LoadProblem(Config{ProblemsRoot: root}, "b")
	if err != nil {
		t.Fatalf("LoadProblem error: %v", err)
	}
	if len(p.Cases) != 2 {
		t.Fatalf("len(Cases) = %d, want 2", len(p.Cases))
	}
	if p.Cases[0].TimeNs != 2*nsPerSecond {
		t.Errorf("case 0 time = %d, want case-level override 2s", p.Cases[0].TimeNs)
	}
	if p.Cases[1].TimeNs != defaultTimeNs {
		t.Errorf("case 1 time = %d, want system default", p.Cases[1].TimeNs)
	}
}

func TestLoadProblemLimitPrecedence(t *testing.T) {
	root := t.TempDir()
	writeProblem(t, root, "c", `
type: default
time: 5s
subtasks:
  - n_cases: 1
    time: 3s
  - cases:
      - input: x.in
        output: x.ans
`, nil)

	p, err := LoadProblem(Config{ProblemsRoot: root}, "c")
	if err != nil {
		t.Fatalf("LoadProblem error: %v", err)
	}
	if p.Cases[0].TimeNs != 3*nsPerSecond {
		t.Errorf("case 0 time = %d, want subtask override 3s", p.Cases[0].TimeNs)
	}
	if p.Cases[1].TimeNs != 5*nsPerSecond {
		t.Errorf("case 1 time = %d, want problem-level 5s (no subtask/case override)", p.Cases[1].TimeNs)
	}
}

func TestLoadProblemRejectsBadType(t *testing.T) {
	root := t.TempDir()
	writeProblem(t, root, "d", `
type: bogus
subtasks:
  - n_cases: 1
`, nil)
	if _, err := LoadProblem(Config{ProblemsRoot: root}, "d"); KindOf(err) != KindConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestLoadProblemMissing(t *testing.T) {
	root := t.TempDir()
	if _, err := LoadProblem(Config{ProblemsRoot: root}, "nope"); KindOf(err) != KindProblemNotFound {
		t.Fatalf("expected ProblemNotFound, got %v", err)
	}
}

func TestResolveAnswerFilenameFallback(t *testing.T) {
	root := t.TempDir()
	writeProblem(t, root, "e", `
type: default
subtasks:
  - n_cases: 1
`, map[string]string{"1.ans": "expected\n"})

	cfg := Config{ProblemsRoot: root}
	got := ResolveAnswerFilename(cfg, "e", "1.out")
	if got != "1.ans" {
		t.Errorf("ResolveAnswerFilename = %s, want 1.ans fallback", got)
	}

	noFallback := ResolveAnswerFilename(cfg, "e", "1.ans")
	if noFallback != "1.ans" {
		t.Errorf("ResolveAnswerFilename(1.ans) = %s, want unchanged", noFallback)
	}
}

func TestListProblemsLexicographicAndFiltered(t *testing.T) {
	root := t.TempDir()
	writeProblem(t, root, "b-problem", "type: default\nsubtasks:\n  - n_cases: 1\n", nil)
	writeProblem(t, root, "a-problem", "type: default\nsubtasks:\n  - n_cases: 1\n", nil)
	if err := os.MkdirAll(filepath.Join(root, "not-a-problem"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	pids, err := ListProblems(Config{ProblemsRoot: root}, false)
	if err != nil {
		t.Fatalf("ListProblems error: %v", err)
	}
	want := []string{"a-problem", "b-problem"}
	if len(pids) != len(want) {
		t.Fatalf("ListProblems = %v, want %v", pids, want)
	}
	for i := range want {
		if pids[i] != want[i] {
			t.Fatalf("ListProblems = %v, want %v", pids, want)
		}
	}
}
