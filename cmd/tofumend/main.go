package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

var version = "v0.4.1"

const defaultModel = "gpt-4o-mini-2024-07-18"

type cliConfig struct {
	TfBin         string
	InputDir      string
	OutputDir     string
	TemplatePath  string
	APIKey        string
	Model         string
	MaxRetries    int
	SleepInterval int
	LogDir        string
	ReportPath    string
}

func main() {
	os.Exit(runMain(os.Args[1:]))
}

func runMain(args []string) int {
	cfg := &cliConfig{}
	cmd := newRootCommand(cfg)
	if args == nil {
		// SetArgs(nil) falls back to os.Args, which is wrong under tests.
		args = []string{}
	}
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCommand(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tofumend",
		Short:         "Automate tofu planning and fixing using an OpenAI model",
		Long:          "tofumend repeatedly runs `tofu plan -detailed-exitcode` against a working folder and, when the plan does not converge, asks an OpenAI model to rewrite the offending files using the original CloudFormation template as ground truth.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.TfBin, "tf-bin", "", "path to the tofu binary")
	flags.StringVar(&cfg.InputDir, "input", "", "input folder for tofu")
	flags.StringVar(&cfg.OutputDir, "output-folder", "", "output folder for fixed files")
	flags.StringVar(&cfg.TemplatePath, "original-template", "", "path to the original CloudFormation template")
	flags.StringVar(&cfg.APIKey, "openai-api-key", "", "OpenAI API key (defaults to the OPENAI_API_KEY environment variable)")
	flags.StringVar(&cfg.Model, "openai-model", defaultModel, "OpenAI model name")
	flags.IntVar(&cfg.MaxRetries, "max-retries", 5, "maximum number of retries for fixing")
	flags.IntVar(&cfg.SleepInterval, "sleep-interval", 10, "seconds to wait between retries")
	flags.StringVar(&cfg.LogDir, "log-dir", "logs", "directory for the JSONL round log")
	flags.StringVar(&cfg.ReportPath, "report", "", "write a JSON run report to this path")

	_ = cmd.MarkFlagRequired("tf-bin")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output-folder")
	_ = cmd.MarkFlagRequired("original-template")

	return cmd
}

func run(ctx context.Context, cfg *cliConfig) error {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if apiKey == "" {
		return fmt.Errorf("OpenAI API key not provided; use --openai-api-key or set the OPENAI_API_KEY environment variable")
	}

	if info, err := os.Stat(cfg.TfBin); err != nil || info.IsDir() {
		return fmt.Errorf("tofu binary not found at %s", cfg.TfBin)
	}
	if info, err := os.Stat(cfg.InputDir); err != nil || !info.IsDir() {
		return fmt.Errorf("input folder not found at %s", cfg.InputDir)
	}

	if err := seedWorkspace(cfg.InputDir, cfg.OutputDir); err != nil {
		return err
	}
	template, err := loadReferenceTemplate(cfg.TemplatePath)
	if err != nil {
		return err
	}

	log, logPath, err := openRoundLog(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("open round log: %w", err)
	}
	defer log.Close()
	fmt.Printf("Logs:   %s\n", logPath)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	report := &RunReport{StartTime: time.Now()}
	defer func() {
		report.EndTime = time.Now()
		report.TotalDuration = report.EndTime.Sub(report.StartTime).String()
		if cfg.ReportPath != "" {
			writeReport(cfg.ReportPath, report)
		}
	}()

	loopCfg := loopConfig{
		TfBin:         cfg.TfBin,
		OutputDir:     cfg.OutputDir,
		Model:         cfg.Model,
		MaxRetries:    cfg.MaxRetries,
		SleepInterval: time.Duration(cfg.SleepInterval) * time.Second,
	}
	client := openai.NewClient(apiKey)

	if err := runRepairLoop(ctx, loopCfg, client, template, log, report); err != nil {
		report.ExitCode = 1
		return err
	}
	return nil
}

func writeReport(path string, report *RunReport) {
	file, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write report to %s: %v\n", path, err)
		return
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to encode report: %v\n", err)
	}
}
