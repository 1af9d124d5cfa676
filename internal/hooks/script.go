package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"
)

// ScriptConfig describes an executable that receives each event as JSON on
// stdin.
type ScriptConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Timeout time.Duration
}

// NewScriptHandler returns a Handler that runs cfg.Command once per event.
// DOCCHAT_EVENT and DOCCHAT_DOCUMENT_ID are set for scripts that only route
// on the event type.
func NewScriptHandler(cfg ScriptConfig) Handler {
	extra := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		extra = append(extra, k+"="+v)
	}
	sort.Strings(extra)

	return func(ctx context.Context, evt Event) error {
		if cfg.Command == "" {
			return fmt.Errorf("hooks: command not configured")
		}
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("hooks: marshal %s: %w", evt.Type, err)
		}
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		cmd.Stdin = bytes.NewReader(append(payload, '\n'))
		cmd.Env = append(os.Environ(), "DOCCHAT_EVENT="+string(evt.Type), "DOCCHAT_DOCUMENT_ID="+evt.DocumentID)
		cmd.Env = append(cmd.Env, extra...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("hooks: %s via %s: %w: %s", evt.Type, cfg.Command, err, bytes.TrimSpace(out))
		}
		return nil
	}
}
