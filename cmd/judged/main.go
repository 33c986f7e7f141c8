package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"judgecore/core"
)

func main() {
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := core.NewLogger(cfg, "judged.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logger.Sync()

	sandbox := core.NewHTTPSandbox(cfg.SandboxAddr, logger)
	store := core.NewSubmissionStore(cfg)
	cache := core.NewVerdictCache()
	engine := core.NewJudgeEngine(cfg, sandbox, store, cache, logger)

	engine.Start(ctx)
	logger.Info("judged started", zap.Int("workers", cfg.WorkerCount), zap.String("sandbox", cfg.SandboxAddr))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
	}()

	repl(ctx, engine, logger)
	stop()
	engine.Wait()
}

// repl drives the in-process API from a small line-oriented CLI
// (submit/result/reset), standing in for the out-of-scope transport
// layer.
func repl(ctx context.Context, engine *core.JudgeEngine, logger *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "submit":
			if len(fields) != 4 {
				fmt.Println("usage: submit <pid> <language> <source-file>")
				continue
			}
			data, err := os.ReadFile(fields[3])
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			sid, err := engine.Submit(fields[1], fields[2], string(data))
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("sid=%d\n", sid)

		case "result":
			if len(fields) != 2 {
				fmt.Println("usage: result <sid>")
				continue
			}
			sid, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Printf("error: invalid sid %q\n", fields[1])
				continue
			}
			v, ok, err := engine.GetResult(sid)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			if !ok {
				fmt.Println("not found")
				continue
			}
			fmt.Printf("status=%s passed=%t result=%s cases=%d\n", v.Status, v.Passed, v.Result, len(v.Cases))

		case "reset":
			if err := engine.Reset(); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("ok")

		case "quit", "exit":
			return

		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("stdin scan failed", zap.Error(err))
	}
}
