package modules

import (
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/visbind/internal/widgets"
)

// DashboardModule collects the widgets a script declares.
type DashboardModule struct {
	declared []widgets.Widget
	ids      map[string]bool
	system   map[string]any
}

// NewDashboardModule creates an empty dashboard module.
func NewDashboardModule() *DashboardModule {
	return &DashboardModule{ids: make(map[string]bool)}
}

// Loader is the module loader for Lua
func (m *DashboardModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "actual", L.NewFunction(m.declare(widgets.KindActual)))
	L.SetField(mod, "thermostat", L.NewFunction(m.declare(widgets.KindThermostat)))
	L.SetField(mod, "switches", L.NewFunction(m.declare(widgets.KindSwitches)))
	L.SetField(mod, "system", L.NewFunction(m.setSystem))
	L.SetField(mod, "unbound", lua.LString("nothing_selected"))

	L.Push(mod)
	return 1
}

// declare returns dashboard.<kind>(id, opts).
func (m *DashboardModule) declare(kind widgets.Kind) lua.LGFunction {
	return func(L *lua.LState) int {
		id := L.CheckString(1)
		opts := L.OptTable(2, L.NewTable())

		if m.ids[id] {
			L.RaiseError("widget %q declared twice", id)
			return 0
		}

		w, err := widgets.Decode(kind, id, LuaTableToMap(opts))
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}

		m.ids[id] = true
		m.declared = append(m.declared, w)
		log.Debug().Str("widget", id).Str("kind", string(kind)).Msg("Widget declared")

		L.Push(lua.LString(id))
		return 1
	}
}

// system({float_comma = bool, language = string}) overrides the display
// settings from the daemon config.
func (m *DashboardModule) setSystem(L *lua.LState) int {
	m.system = LuaTableToMap(L.CheckTable(1))
	return 0
}

// Widgets returns the declared widgets in declaration order.
func (m *DashboardModule) Widgets() []widgets.Widget {
	return append([]widgets.Widget(nil), m.declared...)
}

// Formatter applies the script's display overrides to base.
func (m *DashboardModule) Formatter(base widgets.Formatter) widgets.Formatter {
	if v, ok := m.system["float_comma"].(bool); ok {
		base.FloatComma = v
	}
	if v, ok := m.system["language"].(string); ok && v != "" {
		base.Language = v
	}
	return base
}
