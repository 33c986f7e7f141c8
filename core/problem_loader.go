package core

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimeNs      = 1 * nsPerSecond
	defaultMemoryBytes = 256 * bytesPerMiB
	defaultCheckerName = "chk.cc"
)

// problemDoc is the raw config.yaml shape.
type problemDoc struct {
	Type         string       `yaml:"type"`
	Time         interface{}  `yaml:"time"`
	TimeLimit    interface{}  `yaml:"time_limit"`
	Memory       interface{}  `yaml:"memory"`
	MemoryLimit  interface{}  `yaml:"memory_limit"`
	Checker      string       `yaml:"checker"`
	Interactor   string       `yaml:"interactor"`
	Filename     string       `yaml:"filename"`
	InputPrefix  string       `yaml:"input_prefix"`
	InputSuffix  string       `yaml:"input_suffix"`
	OutputPrefix string       `yaml:"output_prefix"`
	OutputSuffix string       `yaml:"output_suffix"`
	Subtasks     []subtaskDoc `yaml:"subtasks"`
}

type subtaskDoc struct {
	Score       float64     `yaml:"score"`
	Time        interface{} `yaml:"time"`
	TimeLimit   interface{} `yaml:"time_limit"`
	Memory      interface{} `yaml:"memory"`
	MemoryLimit interface{} `yaml:"memory_limit"`
	NCases      int         `yaml:"n_cases"`
	Cases       []caseDoc   `yaml:"cases"`
}

type caseDoc struct {
	Input       string      `yaml:"input"`
	Output      string      `yaml:"output"`
	Time        interface{} `yaml:"time"`
	TimeLimit   interface{} `yaml:"time_limit"`
	Memory      interface{} `yaml:"memory"`
	MemoryLimit interface{} `yaml:"memory_limit"`
}

func firstSet(values ...interface{}) interface{} {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func resolveTime(levels ...interface{}) (int64, error) {
	if v := firstSet(levels...); v != nil {
		return ParseTimeToNs(v)
	}
	return defaultTimeNs, nil
}

func resolveMemory(levels ...interface{}) (int64, error) {
	if v := firstSet(levels...); v != nil {
		return ParseMemoryToBytes(v)
	}
	return defaultMemoryBytes, nil
}

// LoadProblem reads <problems_root>/<pid>/config.yaml and flattens it
// into an execution plan.
func LoadProblem(cfg Config, pid string) (*Problem, error) {
	dir := filepath.Join(cfg.ProblemsRoot, pid)
	raw, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(KindProblemNotFound, "problem %q not found", pid)
		}
		return nil, wrapErr(KindIOError, err, "read config.yaml for %q", pid)
	}

	var doc problemDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, wrapErr(KindConfigInvalid, err, "parse config.yaml for %q", pid)
	}

	ptype := ProblemType(doc.Type)
	if ptype != ProblemDefault && ptype != ProblemInteractive {
		return nil, newErr(KindConfigInvalid, "problem %q: invalid type %q", pid, doc.Type)
	}
	if ptype == ProblemInteractive && doc.Interactor == "" {
		return nil, newErr(KindConfigInvalid, "problem %q: interactive type requires interactor", pid)
	}
	if len(doc.Subtasks) == 0 {
		return nil, newErr(KindConfigInvalid, "problem %q: subtasks must be non-empty", pid)
	}

	problemTimeRaw := firstSet(doc.Time, doc.TimeLimit)
	problemMemRaw := firstSet(doc.Memory, doc.MemoryLimit)
	problemTimeNs, err := resolveTime(problemTimeRaw)
	if err != nil {
		return nil, newErr(KindConfigInvalid, "problem %q: %v", pid, err)
	}
	problemMemBytes, err := resolveMemory(problemMemRaw)
	if err != nil {
		return nil, newErr(KindConfigInvalid, "problem %q: %v", pid, err)
	}

	inputPrefix := doc.InputPrefix
	inputSuffix := firstNonEmpty(doc.InputSuffix, ".in")
	outputPrefix := doc.OutputPrefix
	outputSuffix := firstNonEmpty(doc.OutputSuffix, ".ans")

	cases := make([]Case, 0)
	nextIndex := 1

	for subIdx, st := range doc.Subtasks {
		hasNCases := st.NCases > 0
		hasCases := len(st.Cases) > 0
		if hasNCases == hasCases {
			return nil, newErr(KindConfigInvalid, "problem %q: subtask %d must set exactly one of n_cases/cases", pid, subIdx)
		}

		subTimeRaw := firstSet(st.Time, st.TimeLimit)
		subMemRaw := firstSet(st.Memory, st.MemoryLimit)

		if hasNCases {
			for k := 0; k < st.NCases; k++ {
				idx := nextIndex + k
				c := Case{
					SubtaskIndex:   subIdx,
					InputFilename:  inputPrefix + strconv.Itoa(idx) + inputSuffix,
					AnswerFilename: outputPrefix + strconv.Itoa(idx) + outputSuffix,
				}
				c.TimeNs, err = resolveTime(nil, subTimeRaw, problemTimeRaw)
				if err != nil {
					return nil, newErr(KindConfigInvalid, "problem %q subtask %d: %v", pid, subIdx, err)
				}
				c.MemoryBytes, err = resolveMemory(nil, subMemRaw, problemMemRaw)
				if err != nil {
					return nil, newErr(KindConfigInvalid, "problem %q subtask %d: %v", pid, subIdx, err)
				}
				cases = append(cases, c)
			}
			nextIndex += st.NCases
			continue
		}

		for ci, cd := range st.Cases {
			if cd.Input == "" || cd.Output == "" {
				return nil, newErr(KindConfigInvalid, "problem %q subtask %d case %d: input/output required", pid, subIdx, ci)
			}
			c := Case{
				SubtaskIndex:   subIdx,
				InputFilename:  cd.Input,
				AnswerFilename: cd.Output,
			}
			caseTimeRaw := firstSet(cd.Time, cd.TimeLimit)
			caseMemRaw := firstSet(cd.Memory, cd.MemoryLimit)
			c.TimeNs, err = resolveTime(caseTimeRaw, subTimeRaw, problemTimeRaw)
			if err != nil {
				return nil, newErr(KindConfigInvalid, "problem %q subtask %d case %d: %v", pid, subIdx, ci, err)
			}
			c.MemoryBytes, err = resolveMemory(caseMemRaw, subMemRaw, problemMemRaw)
			if err != nil {
				return nil, newErr(KindConfigInvalid, "problem %q subtask %d case %d: %v", pid, subIdx, ci, err)
			}
			cases = append(cases, c)
		}
	}

	return &Problem{
		Pid:            pid,
		ProblemDir:     dir,
		Type:           ptype,
		Cases:          cases,
		CheckerName:    firstNonEmpty(doc.Checker, defaultCheckerName),
		InteractorName: doc.Interactor,
		MainName:       doc.Filename,
		TimeNs:         problemTimeNs,
		MemoryBytes:    problemMemBytes,
	}, nil
}

// ReadTestFile reads a file from a problem's testdata directory.
func ReadTestFile(cfg Config, pid, name string) (string, error) {
	path := filepath.Join(cfg.ProblemsRoot, pid, "testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", wrapErr(KindIOError, err, "read test file %s/%s", pid, name)
	}
	return string(data), nil
}

// ResolveAnswerFilename applies the .out→.ans fallback: when the
// configured name ends in .out and a sibling .ans file exists on disk,
// the .ans variant is preferred.
func ResolveAnswerFilename(cfg Config, pid, name string) string {
	if !strings.HasSuffix(name, ".out") {
		return name
	}
	alt := strings.TrimSuffix(name, ".out") + ".ans"
	if _, err := os.Stat(filepath.Join(cfg.ProblemsRoot, pid, "testdata", alt)); err == nil {
		return alt
	}
	return name
}

// ReadCheckerSource reads a problem's checker source file.
func ReadCheckerSource(cfg Config, pid, name string) (string, error) {
	path := filepath.Join(cfg.ProblemsRoot, pid, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", wrapErr(KindIOError, err, "read checker source %s/%s", pid, name)
	}
	return string(data), nil
}

// ReadInteractorSource reads a problem's interactor source file.
func ReadInteractorSource(cfg Config, pid, name string) (string, error) {
	path := filepath.Join(cfg.ProblemsRoot, pid, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", wrapErr(KindIOError, err, "read interactor source %s/%s", pid, name)
	}
	return string(data), nil
}

// ReadStatement reads a problem's optional statement.txt.
func ReadStatement(cfg Config, pid string) (string, error) {
	path := filepath.Join(cfg.ProblemsRoot, pid, "statement.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", wrapErr(KindIOError, err, "read statement for %q", pid)
	}
	return string(data), nil
}

// CheckerBinPath returns the on-disk path the Checker Preparer checks
// for a pre-compiled checker cache.
func CheckerBinPath(problemDir, checkerName string) string {
	return filepath.Join(problemDir, checkerName+".bin")
}

// ListProblems enumerates problem directories in lexicographic order,
// keeping only those that contain a config.yaml. Does not fully
// validate each config.
func ListProblems(cfg Config, withStatement bool) ([]string, error) {
	entries, err := os.ReadDir(cfg.ProblemsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapErr(KindIOError, err, "list problems root")
	}

	var pids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(cfg.ProblemsRoot, e.Name())
		if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
			continue
		}
		if withStatement {
			if _, err := os.Stat(filepath.Join(dir, "statement.txt")); err != nil {
				continue
			}
		}
		pids = append(pids, e.Name())
	}
	sort.Strings(pids)
	return pids, nil
}
