package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/portcheck/portcheck/pkg/model"
)

// Toolchain compiles harness sources into an executable artifact and runs it.
// One implementation exists per backend; the executor is agnostic to which
// concrete compiler fulfills the contract.
type Toolchain interface {
	// Name identifies the toolchain in logs and reports.
	Name() string

	// Compile builds the sources (already written into dir) into an
	// artifact. A non-nil error with compiler stderr means the unit
	// failed to compile.
	Compile(ctx context.Context, dir string, sources []string) (artifact string, compileLog string, err error)

	// Execute runs the artifact with the given arguments and returns its
	// captured output.
	Execute(ctx context.Context, artifact string, args []string) (*runResult, error)
}

// GCCToolchain compiles C harnesses with gcc.
type GCCToolchain struct {
	// Compiler is the gcc binary, "gcc" by default.
	Compiler string

	// Flags are extra compiler flags appended after the defaults.
	Flags []string

	// CompileTimeout and ExecTimeout bound the two phases.
	CompileTimeout time.Duration
	ExecTimeout    time.Duration
}

// Name implements Toolchain.
func (t *GCCToolchain) Name() string { return "gcc" }

// Compile implements Toolchain. Sources compile with C99, warnings on, and
// the math library linked.
func (t *GCCToolchain) Compile(ctx context.Context, dir string, sources []string) (string, string, error) {
	compiler := t.Compiler
	if compiler == "" {
		compiler = "gcc"
	}
	artifact := filepath.Join(dir, "harness")
	args := []string{"-std=c99", "-Wall", "-O0", "-o", artifact}
	args = append(args, t.Flags...)
	args = append(args, sources...)
	args = append(args, "-lm")

	res, err := run(ctx, dir, t.CompileTimeout, compiler, args...)
	if err != nil {
		return "", stderrOf(res), err
	}
	if res.ExitCode != 0 {
		return "", res.Stderr, model.NewError(model.ErrKindCompilation,
			fmt.Sprintf("%s exited with code %d", compiler, res.ExitCode), nil)
	}
	return artifact, res.Stderr, nil
}

// Execute implements Toolchain.
func (t *GCCToolchain) Execute(ctx context.Context, artifact string, args []string) (*runResult, error) {
	return run(ctx, filepath.Dir(artifact), t.ExecTimeout, artifact, args...)
}

// DotnetToolchain compiles C# harnesses with the dotnet SDK. Compile writes a
// minimal console project file next to the sources and builds it; Execute
// runs the produced assembly with "dotnet exec".
type DotnetToolchain struct {
	// Command is the dotnet binary, "dotnet" by default.
	Command string

	// Framework is the target framework moniker, "net8.0" by default.
	Framework string

	CompileTimeout time.Duration
	ExecTimeout    time.Duration
}

// Name implements Toolchain.
func (t *DotnetToolchain) Name() string { return "dotnet" }

const csprojTemplate = `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <OutputType>Exe</OutputType>
    <TargetFramework>%s</TargetFramework>
    <Nullable>disable</Nullable>
    <AllowUnsafeBlocks>true</AllowUnsafeBlocks>
    <AssemblyName>harness</AssemblyName>
    <StartupObject>Harness</StartupObject>
  </PropertyGroup>
</Project>
`

// Compile implements Toolchain.
func (t *DotnetToolchain) Compile(ctx context.Context, dir string, sources []string) (string, string, error) {
	command := t.Command
	if command == "" {
		command = "dotnet"
	}
	framework := t.Framework
	if framework == "" {
		framework = "net8.0"
	}

	csproj := filepath.Join(dir, "harness.csproj")
	if err := os.WriteFile(csproj, []byte(fmt.Sprintf(csprojTemplate, framework)), 0o644); err != nil {
		return "", "", model.NewError(model.ErrKindInternal, "write project file", err)
	}

	outDir := filepath.Join(dir, "out")
	res, err := run(ctx, dir, t.CompileTimeout, command,
		"build", csproj, "--nologo", "-c", "Release", "-o", outDir)
	if err != nil {
		return "", stderrOf(res), err
	}
	if res.ExitCode != 0 {
		// dotnet reports compiler diagnostics on stdout.
		return "", res.Stdout + res.Stderr, model.NewError(model.ErrKindCompilation,
			fmt.Sprintf("%s build exited with code %d", command, res.ExitCode), nil)
	}
	return filepath.Join(outDir, "harness.dll"), res.Stdout, nil
}

// Execute implements Toolchain.
func (t *DotnetToolchain) Execute(ctx context.Context, artifact string, args []string) (*runResult, error) {
	command := t.Command
	if command == "" {
		command = "dotnet"
	}
	execArgs := append([]string{"exec", artifact}, args...)
	return run(ctx, filepath.Dir(artifact), t.ExecTimeout, command, execArgs...)
}

func stderrOf(res *runResult) string {
	if res == nil {
		return ""
	}
	return res.Stderr
}
