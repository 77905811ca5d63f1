// Package lua runs the dashboard declaration script.
package lua

import (
	"fmt"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/visbind/internal/lua/modules"
	"github.com/dokzlo13/visbind/internal/widgets"
)

// Runtime owns one Lua VM. It is not safe for concurrent use; a script is
// loaded once and the runtime closed, and a reload builds a new runtime.
type Runtime struct {
	L         *lua.LState
	dashboard *modules.DashboardModule
}

// NewRuntime creates a VM with the log and dashboard modules preloaded.
func NewRuntime(script string) *Runtime {
	L := lua.NewState()

	r := &Runtime{
		L:         L,
		dashboard: modules.NewDashboardModule(),
	}

	L.PreloadModule("log", modules.NewLogModule(script).Loader)
	L.PreloadModule("dashboard", r.dashboard.Loader)
	return r
}

// Close closes the Lua state.
func (r *Runtime) Close() {
	r.L.Close()
}

// LoadScript executes the script at path.
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Int("widgets", len(r.dashboard.Widgets())).Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes src.
func (r *Runtime) LoadString(src string) error {
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return nil
}

// Widgets returns the widgets the script declared.
func (r *Runtime) Widgets() []widgets.Widget {
	return r.dashboard.Widgets()
}

// Formatter applies the script's display overrides to base.
func (r *Runtime) Formatter(base widgets.Formatter) widgets.Formatter {
	return r.dashboard.Formatter(base)
}

// Load runs the script at path in a fresh runtime and returns what it
// declared.
func Load(path string, base widgets.Formatter) ([]widgets.Widget, widgets.Formatter, error) {
	r := NewRuntime(path)
	defer r.Close()

	if err := r.LoadScript(path); err != nil {
		return nil, base, err
	}
	return r.Widgets(), r.Formatter(base), nil
}
