// Package luaengine runs operator-supplied Lua scripts as an extra
// acceptance check on verified token claims.
package luaengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	lua "github.com/yuin/gopher-lua"
)

var (
	// ErrRejected wraps every policy decision made by a script.
	ErrRejected = errors.New("rejected by lua policy")
	ErrTimeout  = errors.New("lua policy exceeded time limit")
)

const DefaultTimeout = 100 * time.Millisecond

// Script is a compiled policy. The function prototype is immutable, so one
// Script may be evaluated from many goroutines; each run gets its own state.
type Script struct {
	proto   *lua.FunctionProto
	timeout time.Duration
}

// Compile parses src. A non-positive timeout selects DefaultTimeout.
func Compile(src string, timeout time.Duration) (*Script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	fn, err := L.LoadString(src)
	if err != nil {
		return nil, fmt.Errorf("compile lua policy: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Script{proto: fn.Proto, timeout: timeout}, nil
}

// Evaluate runs the script with the globals `claims` and `permissions` bound.
// The script accepts by returning normally and rejects by calling reject()
// or one of the require_* helpers.
func (s *Script) Evaluate(ctx context.Context, claims map[string]any, permissions []string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)
	openSandbox(L)

	var verdict error
	deny := func(L *lua.LState, format string, args ...any) int {
		verdict = fmt.Errorf("%w: "+format, append([]any{ErrRejected}, args...)...)
		L.RaiseError("%s", verdict.Error())
		return 0
	}

	L.SetGlobal("claims", toTable(L, claims))
	perms := L.NewTable()
	for _, p := range permissions {
		perms.Append(lua.LString(p))
	}
	L.SetGlobal("permissions", perms)

	L.SetGlobal("has", L.NewFunction(func(L *lua.LState) int {
		_, ok := claims[L.CheckString(1)]
		L.Push(lua.LBool(ok))
		return 1
	}))
	L.SetGlobal("get", L.NewFunction(func(L *lua.LState) int {
		L.Push(toValue(L, claims[L.CheckString(1)]))
		return 1
	}))
	L.SetGlobal("has_permission", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(slices.Contains(permissions, L.CheckString(1))))
		return 1
	}))
	L.SetGlobal("require_claim", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if _, ok := claims[name]; !ok {
			return deny(L, "claim %q missing", name)
		}
		return 0
	}))
	L.SetGlobal("require_permission", L.NewFunction(func(L *lua.LState) int {
		p := L.CheckString(1)
		if !slices.Contains(permissions, p) {
			return deny(L, "permission %q missing", p)
		}
		return 0
	}))
	L.SetGlobal("reject", L.NewFunction(func(L *lua.LState) int {
		return deny(L, "%s", L.OptString(1, "no reason given"))
	}))

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		switch {
		case verdict != nil:
			return verdict
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return ErrTimeout
		default:
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}
	return nil
}

// openSandbox loads base, table, string and math, then strips the base
// functions that can load code.
func openSandbox(L *lua.LState) {
	for name, open := range map[string]lua.LGFunction{
		lua.BaseLibName:   lua.OpenBase,
		lua.TabLibName:    lua.OpenTable,
		lua.StringLibName: lua.OpenString,
		lua.MathLibName:   lua.OpenMath,
	} {
		L.Push(L.NewFunction(open))
		L.Push(lua.LString(name))
		L.Call(1, 0)
	}
	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(fn, lua.LNil)
	}
}

func toTable(L *lua.LState, m map[string]any) *lua.LTable {
	t := L.NewTable()
	for k, v := range m {
		t.RawSetString(k, toValue(L, v))
	}
	return t
}

func toValue(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(val)
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case map[string]any:
		return toTable(L, val)
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(toValue(L, item))
		}
		return t
	case []string:
		t := L.NewTable()
		for _, item := range val {
			t.Append(lua.LString(item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
