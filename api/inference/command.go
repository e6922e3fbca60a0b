package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// CommandPredictor runs an external program per request. The program reads
// JSON records on stdin, one per line, and writes one prediction per line.
type CommandPredictor struct {
	Path string
	Args []string
}

// NewCommandPredictor parses a command line such as "python3 /opt/ml/code/predict.py"
func NewCommandPredictor(command string) (*CommandPredictor, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("predictor command is empty")
	}
	return &CommandPredictor{Path: fields[0], Args: fields[1:]}, nil
}

func (p *CommandPredictor) Predict(ctx context.Context, records []json.RawMessage) ([]json.RawMessage, error) {
	var stdin bytes.Buffer
	for _, r := range records {
		stdin.Write(r)
		stdin.WriteByte('\n')
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("predictor %s failed: %w: %s", p.Path, err, strings.TrimSpace(stderr.String()))
	}

	var predictions []json.RawMessage
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 64*1024), maxPayloadBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("predictor %s wrote invalid JSON: %q", p.Path, line)
		}
		predictions = append(predictions, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return predictions, nil
}
