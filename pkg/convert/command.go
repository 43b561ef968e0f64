package convert

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/portcheck/portcheck/pkg/model"
	"github.com/portcheck/portcheck/pkg/telemetry"
)

// CommandGenerator shells out to an external converter. The conversion
// request is written to the command's stdin and the C# source is read from
// its stdout, which keeps the converter swappable without recompiling.
type CommandGenerator struct {
	// Command is the program to run, with Args appended.
	Command string
	Args    []string

	// Timeout bounds one conversion. Zero means 5 minutes.
	Timeout time.Duration

	log *telemetry.Logger
}

// NewCommandGenerator constructs a command-backed generator.
func NewCommandGenerator(command string, args []string, timeout time.Duration, log *telemetry.Logger) *CommandGenerator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &CommandGenerator{
		Command: command,
		Args:    args,
		Timeout: timeout,
		log:     log.NewComponentLogger("convert"),
	}
}

// Name implements Generator.
func (g *CommandGenerator) Name() string { return "command" }

// Convert implements Generator.
func (g *CommandGenerator) Convert(ctx context.Context, unit *model.Unit, deps map[string]string, feedback *Feedback) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.Command, g.Args...)
	cmd.Stdin = strings.NewReader(buildPrompt(unit, deps, feedback))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	g.log.WithUnitID(unit.ID).
		WithField("duration", time.Since(start).String()).
		Debug("converter command finished")
	if ctx.Err() == context.DeadlineExceeded {
		return "", model.NewError(model.ErrKindTimeout, "converter command exceeded deadline", ctx.Err()).WithUnit(unit.ID)
	}
	if err != nil {
		return "", model.NewError(model.ErrKindGeneration,
			"converter command failed: "+strings.TrimSpace(stderr.String()), err).WithUnit(unit.ID)
	}

	src := stripFences(stdout.String())
	if strings.TrimSpace(src) == "" {
		return "", model.NewError(model.ErrKindGeneration, "converter produced no output", nil).WithUnit(unit.ID)
	}
	return src, nil
}
