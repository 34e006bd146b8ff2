// Package command implements the admin command surface (spec [MODULE]
// Admin Command Surface): a small registry of name -> handler mapped
// the way the teacher maps plugin channels and events, dispatched from
// in-game chat (a leading "/") and the proxy console.
package command

import (
	"context"
	"strings"
	"sync"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/proxy/permission"
)

// Source is whatever ran a command: a connected player or the console.
type Source interface {
	permission.Subject
	SendMessage(msg component.Component) error
}

// Context carries one invocation's source and raw argument tokens.
type Context struct {
	Ctx    context.Context
	Source Source
	Args   []string
}

// Command is a single registered command handler.
type Command interface {
	Invoke(c *Context) error
	Usage() string
}

// Func adapts a plain function to Command for the teacher's common
// case of a one-off handler with no separate usage string.
type Func struct {
	Fn  func(c *Context) error
	Use string
}

func (f Func) Invoke(c *Context) error { return f.Fn(c) }
func (f Func) Usage() string           { return f.Use }

// Registry is the proxy's command graph: a flat name -> Command map
// with case-insensitive lookup and alias support, mirroring the
// teacher's single-level `/server`, `/glist`, `/send` command set
// rather than a nested brigadier-style tree (spec's admin surface has
// no nested subcommand grammar beyond the literal tokens it lists).
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register binds name and any aliases to cmd, overwriting a prior
// registration of the same name.
func (r *Registry) Register(cmd Command, name string, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(name)] = cmd
	for _, a := range aliases {
		r.commands[strings.ToLower(a)] = cmd
	}
}

// Has reports whether name (case-insensitive, without a leading "/")
// is a registered command.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[strings.ToLower(name)]
	return ok
}

// Invoke looks up line's first whitespace-delimited token as a command
// name and runs it with the remaining tokens as args. Returns false if
// no command matched, in which case the caller (e.g. the PLAY session
// handler) should forward the original input to the backend verbatim.
func (r *Registry) Invoke(ctx context.Context, source Source, line string) (bool, error) {
	line = strings.TrimPrefix(line, "/")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	r.mu.RLock()
	cmd, ok := r.commands[strings.ToLower(fields[0])]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, cmd.Invoke(&Context{Ctx: ctx, Source: source, Args: fields[1:]})
}
