package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/submission"
)

// LuaCondition is a condition written as a Lua chunk. The chunk sees two
// globals, input (the top-level answers) and iteration (the current subflow
// iteration, or nil), and must return a boolean.
//
//	return input.hasHousehold == "true"
type LuaCondition struct {
	name    string
	proto   *lua.FunctionProto
	logger  *slog.Logger
	timeout time.Duration
}

// DefaultLuaTimeout bounds a single script evaluation
const DefaultLuaTimeout = 100 * time.Millisecond

// LuaOption configures a LuaCondition
type LuaOption func(*LuaCondition)

// WithLuaTimeout sets how long one evaluation may run before it is
// abandoned and evaluates to false
func WithLuaTimeout(d time.Duration) LuaOption {
	return func(c *LuaCondition) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewLuaCondition compiles source into a condition called name
func NewLuaCondition(name, source string, logger *slog.Logger, opts ...LuaOption) (*LuaCondition, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, errors.WrapInvalid(err, "LuaCondition", "New", fmt.Sprintf("parse %s", name))
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, errors.WrapInvalid(err, "LuaCondition", "New", fmt.Sprintf("compile %s", name))
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &LuaCondition{name: name, proto: proto, logger: logger, timeout: DefaultLuaTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoadLuaConditions compiles every *.lua file in dir. Each condition is
// named after its file without the extension.
func LoadLuaConditions(dir string, logger *slog.Logger, opts ...LuaOption) ([]Condition, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, errors.WrapInvalid(err, "LuaCondition", "Load", "glob scripts")
	}
	sort.Strings(paths)

	out := make([]Condition, 0, len(paths))
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "LuaCondition", "Load", fmt.Sprintf("read %s", path))
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		c, err := NewLuaCondition(name, string(src), logger, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Name returns the script name
func (c *LuaCondition) Name() string { return c.name }

// Run evaluates the script with iteration set to nil
func (c *LuaCondition) Run(sub *submission.Submission) bool {
	return c.eval(sub, nil)
}

// RunIteration evaluates the script with iteration bound to the subflow
// iteration uuid. The current subflow is found by searching every
// iteration list in the submission.
func (c *LuaCondition) RunIteration(sub *submission.Submission, uuid string) bool {
	for _, v := range sub.InputData {
		its, ok := v.AsIterations()
		if !ok {
			continue
		}
		for _, it := range its {
			if it.UUID == uuid {
				return c.eval(sub, &it)
			}
		}
	}
	return c.eval(sub, nil)
}

// eval runs the compiled chunk in a fresh state bounded by the timeout.
// Script errors and timeouts evaluate to false.
func (c *LuaCondition) eval(sub *submission.Submission, it *submission.Iteration) bool {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSafeLibs(L)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	L.SetContext(ctx)

	input := L.NewTable()
	for k, v := range sub.InputData {
		input.RawSetString(k, toLua(L, v.Interface()))
	}
	L.SetGlobal("input", input)
	if it != nil {
		L.SetGlobal("iteration", toLua(L, it.Map()))
	} else {
		L.SetGlobal("iteration", lua.LNil)
	}

	L.Push(L.NewFunctionFromProto(c.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		c.logger.Warn("lua condition failed", "name", c.name, "error", err)
		return false
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret)
}

func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "print"} {
		L.SetGlobal(fn, lua.LNil)
	}
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case string:
		return lua.LString(t)
	case bool:
		return lua.LBool(t)
	case []string:
		tbl := L.NewTable()
		for _, s := range t {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range t {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	case []map[string]any:
		tbl := L.NewTable()
		for _, item := range t {
			tbl.Append(toLua(L, item))
		}
		return tbl
	default:
		return lua.LNil
	}
}
