package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type logEntry struct {
	Time       string `json:"time"`
	Type       string `json:"type"`
	Attempt    int    `json:"attempt,omitempty"`
	PlanStatus string `json:"plan_status,omitempty"`
	OutputLen  int    `json:"output_len,omitempty"`
	FilesSent  int    `json:"files_sent,omitempty"`
	FilesFixed int    `json:"files_fixed,omitempty"`
	Model      string `json:"model,omitempty"`
	Error      string `json:"error,omitempty"`
}

// roundLog appends one JSON object per line for each round event. Logging
// is best-effort: a nil log or a write failure never interrupts the run.
type roundLog struct {
	file *os.File
}

func openRoundLog(dir string) (*roundLog, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("tofumend-%s.jsonl", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", err
	}
	return &roundLog{file: file}, path, nil
}

func (l *roundLog) write(entry logEntry) {
	if l == nil || l.file == nil {
		return
	}
	if entry.Time == "" {
		entry.Time = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = l.file.Write(append(data, '\n'))
}

func (l *roundLog) Close() {
	if l == nil || l.file == nil {
		return
	}
	_ = l.file.Close()
}
