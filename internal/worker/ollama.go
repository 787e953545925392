package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dispatch runs one worker invocation, branching on req.Provider between
// the subprocess path (Supervise, for "claude"/"codex") and the HTTP
// streaming path (for "ollama") per spec.md §6's worker command contract.
func Dispatch(ctx context.Context, req Request) (*Result, error) {
	if req.Provider == ProviderOllama {
		return executeOllama(ctx, req)
	}
	return Supervise(ctx, req)
}

// generateRequest is the body posted to {endpoint}/api/generate.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumCtx      *int     `json:"num_ctx,omitempty"`
}

// generateChunk is one NDJSON line of the streamed response.
type generateChunk struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// executeOllama implements spec.md §6's ollama contract: POST
// {endpoint}/api/generate with stream:true, decode one NDJSON line per
// chunk, aggregate the "response" field into response_text. Since ollama
// has no progress-file channel, each received chunk counts as a heartbeat;
// HeartbeatGrace bounds the gap between chunks instead of bounding gaps
// between progress-file writes.
func executeOllama(ctx context.Context, req Request) (*Result, error) {
	if err := os.MkdirAll(req.RunDir, 0o755); err != nil {
		return nil, fmt.Errorf("worker: mkdir run dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(req.RunDir, "prompt.txt"), []byte(req.Prompt), 0o644); err != nil {
		return nil, fmt.Errorf("worker: write prompt file: %w", err)
	}
	stdoutPath := filepath.Join(req.RunDir, "stdout.log")
	stdoutFile, err := os.Create(stdoutPath)
	if err != nil {
		return nil, fmt.Errorf("worker: create stdout log: %w", err)
	}
	defer stdoutFile.Close()

	reqCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	body := generateRequest{Model: req.Model, Prompt: req.Prompt, Stream: true}
	if req.Temperature != nil || req.NumCtx != nil {
		body.Options = &generateOptions{Temperature: req.Temperature, NumCtx: req.NumCtx}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("worker: marshal ollama request: %w", err)
	}

	url := strings.TrimSuffix(req.Endpoint, "/") + "/api/generate"
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("worker: build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		finished := time.Now()
		return &Result{
			ExitCode: -1, TimedOut: reqCtx.Err() == context.DeadlineExceeded,
			StartedAt: start, FinishedAt: finished, Runtime: finished.Sub(start),
			StdoutPath: stdoutPath,
		}, nil
	}
	defer resp.Body.Close()

	if req.OnSpawn != nil {
		req.OnSpawn(0)
	}

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-reqCtx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	pollInterval := pollIntervalFor(req.HeartbeatInterval)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var responseBuilder strings.Builder
	lastHeartbeat := start
	var noHeartbeat bool

readLoop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break readLoop
			}
			if _, werr := stdoutFile.Write(append(line, '\n')); werr != nil {
				return nil, fmt.Errorf("worker: write ollama stdout log: %w", werr)
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var chunk generateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			lastHeartbeat = time.Now()
			responseBuilder.WriteString(chunk.Response)
			if chunk.Done {
				break readLoop
			}
		case <-ticker.C:
			if time.Since(lastHeartbeat) > req.HeartbeatGrace {
				noHeartbeat = true
				cancel()
				break readLoop
			}
		case <-reqCtx.Done():
			break readLoop
		}
	}

	timedOut := reqCtx.Err() == context.DeadlineExceeded && !noHeartbeat
	finished := time.Now()
	exitCode := 0
	if timedOut || noHeartbeat {
		exitCode = -1
	}

	return &Result{
		ExitCode:      exitCode,
		TimedOut:      timedOut,
		NoHeartbeat:   noHeartbeat,
		StartedAt:     start,
		FinishedAt:    finished,
		Runtime:       finished.Sub(start),
		LastHeartbeat: lastHeartbeat,
		StdoutPath:    stdoutPath,
		ResponseText:  responseBuilder.String(),
	}, nil
}
