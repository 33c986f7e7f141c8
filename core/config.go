package core

import (
	"os"
	"strconv"
)

// Config holds runtime settings for the judge process.
type Config struct {
	SandboxAddr         string // base URL of the remote sandbox executor, e.g. http://localhost:5050
	TestlibIncludePath  string // path to testlib.h as seen from inside the sandbox
	ProblemsRoot        string // <root>/problems
	DataRoot            string // <root>/data (holds counter.txt)
	SubmissionsRoot     string // <root>/submissions
	BucketSize          int64  // submission directory bucketing size (B in sid/B*B)
	WorkerCount         int    // number of judge workers
	QueueSpillThreshold int    // queue length at which intake spills source to disk
	LogDir              string // directory for structured log files (empty disables file output)
}

// Load populates Config from environment variables. Defaults: worker
// count 4, spill threshold 512*1024, bucket size 100.
func Load() Config {
	return Config{
		SandboxAddr:         firstNonEmpty(os.Getenv("JUDGE_SANDBOX_ADDR"), "http://localhost:5050"),
		TestlibIncludePath:  firstNonEmpty(os.Getenv("JUDGE_TESTLIB_INCLUDE"), "/usr/include/testlib"),
		ProblemsRoot:        firstNonEmpty(os.Getenv("JUDGE_PROBLEMS_ROOT"), "./data/problems"),
		DataRoot:            firstNonEmpty(os.Getenv("JUDGE_DATA_ROOT"), "./data/data"),
		SubmissionsRoot:     firstNonEmpty(os.Getenv("JUDGE_SUBMISSIONS_ROOT"), "./data/submissions"),
		BucketSize:          int64(intFromEnv("JUDGE_BUCKET_SIZE", 100)),
		WorkerCount:         intFromEnv("JUDGE_WORKER_COUNT", 4),
		QueueSpillThreshold: intFromEnv("JUDGE_QUEUE_SPILL_THRESHOLD", 512*1024),
		LogDir:              os.Getenv("JUDGE_LOG_DIR"),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
