package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	openai "github.com/sashabaranov/go-openai"
)

// loopState is the controller's position in the repair cycle. planning is
// initial; converged, exhausted and fatal are terminal.
type loopState int

const (
	statePlanning loopState = iota
	stateRepairing
	stateConverged
	stateExhausted
	stateFatal
)

var errRetriesExhausted = errors.New("maximum number of retries reached")

type loopConfig struct {
	TfBin         string
	OutputDir     string
	Model         string
	MaxRetries    int
	SleepInterval time.Duration
}

type RunReport struct {
	StartTime     time.Time    `json:"start_time"`
	EndTime       time.Time    `json:"end_time"`
	TotalDuration string       `json:"total_duration"`
	Converged     bool         `json:"converged"`
	ExitCode      int          `json:"exit_code"`
	Rounds        []RoundStats `json:"rounds"`
}

type RoundStats struct {
	Attempt    int    `json:"attempt"`
	PlanStatus string `json:"plan_status"`
	FilesSent  int    `json:"files_sent,omitempty"`
	FilesFixed int    `json:"files_fixed,omitempty"`
	Duration   string `json:"duration"`
}

var sleepBetweenRounds = func(d time.Duration) {
	time.Sleep(d)
}

// runRepairLoop drives plan → repair → replan rounds until the plan
// converges, the retry budget runs out, or a fatal error occurs. Each
// repairing round is built solely from the latest plan output and the
// current on-disk file set; nothing is carried between rounds. Only a
// diverged plan consumes retry budget — every other failure stops the
// process immediately.
func runRepairLoop(ctx context.Context, cfg loopConfig, client *openai.Client, template referenceTemplate, log *roundLog, report *RunReport) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	if cfg.MaxRetries <= 0 {
		return errRetriesExhausted
	}

	state := statePlanning
	attempt := 0
	lastPlanOutput := ""
	roundStart := time.Now()

	for {
		switch state {
		case statePlanning:
			if err := ctx.Err(); err != nil {
				state = stateFatal
				return err
			}
			roundStart = time.Now()
			fmt.Printf("\nAttempt %d of %d: running %s...\n", attempt+1, cfg.MaxRetries, cfg.TfBin)
			fmt.Printf("\n%s\n\n", cyan("--- Tofu Output ---"))
			result, err := runPlan(ctx, cfg.TfBin, cfg.OutputDir, os.Stdout, os.Stderr)
			if err != nil {
				state = stateFatal
				log.write(logEntry{Type: "plan_error", Attempt: attempt + 1, Error: err.Error()})
				return err
			}
			if result.Status == planConverged {
				state = stateConverged
				log.write(logEntry{Type: "plan_result", Attempt: attempt + 1, PlanStatus: "converged", OutputLen: len(result.Output)})
				report.Rounds = append(report.Rounds, RoundStats{
					Attempt:    attempt + 1,
					PlanStatus: "converged",
					Duration:   time.Since(roundStart).String(),
				})
				report.Converged = true
				fmt.Printf("\n%s\n", green("Tofu plan successful. No changes needed."))
				return nil
			}
			log.write(logEntry{Type: "plan_result", Attempt: attempt + 1, PlanStatus: "diverged", OutputLen: len(result.Output)})
			lastPlanOutput = result.Output
			state = stateRepairing

		case stateRepairing:
			fmt.Println("Tofu plan failed. Attempting to fix files using the model.")
			files, err := readWorkspaceFiles(cfg.OutputDir)
			if err != nil {
				state = stateFatal
				return fmt.Errorf("read working folder: %w", err)
			}

			messages := buildRepairMessages(lastPlanOutput, files, template)
			fmt.Printf("\n%s\n\n", cyan("--- Model Response ---"))
			fixes, err := requestRepairs(ctx, client, cfg.Model, messages, os.Stdout)
			if err != nil {
				state = stateFatal
				log.write(logEntry{Type: "repair_error", Attempt: attempt + 1, Model: cfg.Model, Error: err.Error()})
				return err
			}
			if fixes.Len() == 0 {
				fmt.Println("Warning: model response contained no file blocks; nothing to write.")
			} else {
				printRepairDiffs(files, fixes, os.Stdout)
			}
			if err := writeFixedFiles(cfg.OutputDir, fixes); err != nil {
				state = stateFatal
				return err
			}
			log.write(logEntry{Type: "repair_result", Attempt: attempt + 1, Model: cfg.Model, FilesSent: files.Len(), FilesFixed: fixes.Len()})
			report.Rounds = append(report.Rounds, RoundStats{
				Attempt:    attempt + 1,
				PlanStatus: "diverged",
				FilesSent:  files.Len(),
				FilesFixed: fixes.Len(),
				Duration:   time.Since(roundStart).String(),
			})

			attempt++
			if attempt >= cfg.MaxRetries {
				state = stateExhausted
				fmt.Println("Maximum number of retries reached. Exiting.")
				return errRetriesExhausted
			}
			fmt.Printf("Re-running tofu with the fixed files.\nWaiting for %s before next attempt...\n", cfg.SleepInterval)
			sleepBetweenRounds(cfg.SleepInterval)
			state = statePlanning
		}
	}
}
