package volume

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultCommand steps the ALSA master control up by one percent.
var DefaultCommand = []string{"amixer", "-q", "sset", "Master", "1%+"}

// DefaultCommandTimeout bounds each mixer invocation.
const DefaultCommandTimeout = 500 * time.Millisecond

// ValuePlaceholder in a command argument is replaced by the signal.
const ValuePlaceholder = "{value}"

// runFunc executes a command; replaced in tests.
type runFunc func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// CommandController raises the volume by running an external mixer command,
// e.g. amixer or pactl.
type CommandController struct {
	argv    []string
	timeout time.Duration
	run     runFunc
}

// NewCommandController creates a controller for the given command line.
// An empty argv selects DefaultCommand; a zero timeout selects DefaultCommandTimeout.
func NewCommandController(argv []string, timeout time.Duration) (*CommandController, error) {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	if argv[0] == "" {
		return nil, errors.New("volume command: empty program name")
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &CommandController{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		run:     execRun,
	}, nil
}

// Raise runs the command with {value} substituted by the signal.
func (c *CommandController) Raise(signal float64) error {
	args := make([]string, len(c.argv)-1)
	v := strconv.FormatFloat(signal, 'f', 3, 64)
	for i, a := range c.argv[1:] {
		args[i] = strings.ReplaceAll(a, ValuePlaceholder, v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.run(ctx, c.argv[0], args...); err != nil {
		return fmt.Errorf("raise volume: %w", err)
	}
	return nil
}
