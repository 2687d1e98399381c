// Package process exposes allow-listed local commands as registry tools.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/weft/pkg/registry"
)

// ArgPrefix prefixes the environment variables carrying call arguments.
const ArgPrefix = "WEFT_ARG_"

var argName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Runner executes commands from a fixed allow-list. Call arguments never
// reach the command line; they are passed as WEFT_ARG_<NAME> variables.
type Runner struct {
	commands map[string]Config
	baseDir  string
}

// Option configures a Runner.
type Option func(*Runner)

// WithTools adds every tool of a loaded tools file to the allow-list.
func WithTools(tools map[string]Config) Option {
	return func(r *Runner) {
		for name, tool := range tools {
			tool.Name = name
			r.commands[name] = tool
		}
	}
}

// WithBaseDir sets the working directory of executed commands.
func WithBaseDir(dir string) Option {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a runner with an empty allow-list.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{commands: make(map[string]Config)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register allows command to run under name.
func (r *Runner) Register(name, command string, args ...string) {
	r.commands[name] = Config{Name: name, Command: command, Args: args}
}

// Names returns the allowed tool names in lexical order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Install registers every allowed command as a tool of reg.
func (r *Runner) Install(reg *registry.Registry) {
	for _, name := range r.Names() {
		reg.Register(name, r.Tool(name))
	}
}

// Tool returns the registry function running the command called name.
func (r *Runner) Tool(name string) registry.ToolFunction {
	return func(ctx context.Context, args map[string]any) (any, error) {
		return r.Execute(ctx, name, args)
	}
}

// Execute runs the command called name. Stdout holding a JSON object or
// array is decoded; any other output is returned as trimmed text.
func (r *Runner) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := r.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an allowed command", registry.ErrToolNotFound, name)
	}

	env, err := argEnv(args)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, tool.Command, tool.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = cmd.Environ()
	for k, v := range tool.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return decodeOutput(stdout.String()), nil
}

func argEnv(args map[string]any) ([]string, error) {
	env := make([]string, 0, len(args))
	for k, v := range args {
		if !argName.MatchString(k) {
			return nil, fmt.Errorf("argument name %q is not a valid variable name", k)
		}
		var val string
		switch v := v.(type) {
		case nil:
		case string:
			val = v
		case int, int64, float64, bool:
			val = fmt.Sprint(v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode argument %s: %w", k, err)
			}
			val = string(b)
		}
		env = append(env, ArgPrefix+strings.ToUpper(k)+"="+val)
	}
	slices.Sort(env)
	return env, nil
}

func decodeOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
