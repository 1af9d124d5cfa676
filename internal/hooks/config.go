package hooks

import (
	"fmt"
	"strings"
	"time"
)

// Config describes the optional script that receives document events.
type Config struct {
	ScriptPath string
	ScriptArgs []string
	Env        map[string]string
	Timeout    time.Duration
}

// Enabled reports whether a script is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.ScriptPath) != ""
}

// Validate rejects a negative timeout or arguments without a script.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("hooks: timeout must not be negative")
	}
	if !c.Enabled() && len(c.ScriptArgs) > 0 {
		return fmt.Errorf("hooks: script args given without a script path")
	}
	return nil
}

// NewDispatcher returns a dispatcher with the configured script registered,
// or nil when no script is set.
func (c Config) NewDispatcher() *Dispatcher {
	if !c.Enabled() {
		return nil
	}
	d := &Dispatcher{}
	d.Register(NewScriptHandler(ScriptConfig{
		Command: c.ScriptPath,
		Args:    c.ScriptArgs,
		Env:     c.Env,
		Timeout: c.Timeout,
	}))
	return d
}
