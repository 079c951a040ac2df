// Package module models the registration shim that would bind
// SHIELD.absorb to a real command-serving host. It deliberately stops
// at a generic Host interface rather than binding to any specific
// module-loading mechanism — the actual bridge (cgo, a module-loader
// ABI, whatever the host provides) lives outside this module's scope.
package module

import (
	"context"

	"github.com/shieldrl/shield/command"
	"github.com/shieldrl/shield/store"
)

// CommandFunc is the shape a host expects a registered command
// handler to have: a context and the raw argument tokens, including
// the command name itself as args[0].
type CommandFunc func(ctx context.Context, args []string) (int64, error)

// Host is the minimal surface this package needs from whatever process
// loads it: the ability to register a named command. Real bridges
// (e.g. a Redis module loader) implement this on top of their own ABI.
type Host interface {
	RegisterCommand(name string, flags string, handler CommandFunc) error
}

// commandName is the single command this module ever registers.
const commandName = "SHIELD.absorb"

// commandFlags marks the command read-write, since accepted requests
// mutate store state.
const commandFlags = "write"

// Register binds SHIELD.absorb to host, backed by s. It registers
// exactly one command and defines no custom data types — the store
// holds all persisted state.
func Register(host Host, s store.Store) error {
	return host.RegisterCommand(commandName, commandFlags, func(ctx context.Context, args []string) (int64, error) {
		return command.Dispatch(ctx, s, args)
	})
}
