package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/windlass-io/windlass/internal/consumer"
	"github.com/windlass-io/windlass/internal/record"
)

// execHandler turns a command line into an event handler.
//
// For every event the command is executed with the event's canonical JSON
// on stdin. Exit 0 means success; stdout is parsed as the result document
// (non-JSON stdout becomes {"output": "..."}). A non-zero exit is a
// handler failure and carries stderr as the reason.
func execHandler(argv []string) consumer.Handler {
	return func(ev record.Event) (map[string]any, error) {
		line, err := ev.CanonicalJSON()
		if err != nil {
			return nil, err
		}

		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stdin = bytes.NewReader(append(line, '\n'))
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			reason := strings.TrimSpace(stderr.String())
			if reason == "" {
				reason = err.Error()
			}
			return nil, fmt.Errorf("handler %s: %s", argv[0], reason)
		}

		out := strings.TrimSpace(stdout.String())
		if out == "" {
			return map[string]any{}, nil
		}
		var result map[string]any
		if err := json.Unmarshal([]byte(out), &result); err != nil {
			return map[string]any{"output": out}, nil
		}
		return result, nil
	}
}
