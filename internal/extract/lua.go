package extract

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// LuaExtractor runs a user-supplied Lua script as an extractor, so new
// host/foreign language pairs can be supported from configuration
// without recompiling.
//
// The script must define two globals:
//
//	has_foreign_code(text) -> boolean
//	extract_foreign_code(text) -> { {language=, standalone=, start_line=, end_line=, text=}, ... }
//
// Line numbers in the script are 1-based and inclusive, following Lua
// convention; results are converted on the way out. A returned entry
// with no language masks its lines without producing a foreign
// document.
type LuaExtractor struct {
	mu    sync.Mutex // lua.LState is not goroutine safe
	state *lua.LState
}

// NewLuaExtractor loads a script and verifies it defines the required
// entry points. The caller owns the returned extractor and should
// Close it when the registry is torn down.
func NewLuaExtractor(script string) (*LuaExtractor, error) {
	state := lua.NewState()
	if err := state.DoString(script); err != nil {
		state.Close()
		return nil, fmt.Errorf("load extractor script: %w", err)
	}
	for _, name := range []string{"has_foreign_code", "extract_foreign_code"} {
		if _, ok := state.GetGlobal(name).(*lua.LFunction); !ok {
			state.Close()
			return nil, fmt.Errorf("extractor script does not define function %q", name)
		}
	}
	return &LuaExtractor{state: state}, nil
}

// Close releases the interpreter state.
func (x *LuaExtractor) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.state.Close()
}

// HasForeignCode invokes the script's has_foreign_code.
func (x *LuaExtractor) HasForeignCode(text string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.state.CallByParam(lua.P{
		Fn:      x.state.GetGlobal("has_foreign_code"),
		NRet:    1,
		Protect: true,
	}, lua.LString(text))
	if err != nil {
		return false
	}
	ret := x.state.Get(-1)
	x.state.Pop(1)
	return lua.LVAsBool(ret)
}

// ExtractForeignCode invokes the script's extract_foreign_code and
// converts the returned table.
func (x *LuaExtractor) ExtractForeignCode(text string) ([]Extraction, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	err := x.state.CallByParam(lua.P{
		Fn:      x.state.GetGlobal("extract_foreign_code"),
		NRet:    1,
		Protect: true,
	}, lua.LString(text))
	if err != nil {
		return nil, fmt.Errorf("extract_foreign_code: %w", err)
	}
	ret := x.state.Get(-1)
	x.state.Pop(1)

	table, ok := ret.(*lua.LTable)
	if !ok {
		if ret == lua.LNil {
			return nil, nil
		}
		return nil, fmt.Errorf("extract_foreign_code returned %s, want table", ret.Type())
	}

	var out []Extraction
	var convErr error
	table.ForEach(func(_, value lua.LValue) {
		if convErr != nil {
			return
		}
		entry, ok := value.(*lua.LTable)
		if !ok {
			convErr = fmt.Errorf("extraction entry is %s, want table", value.Type())
			return
		}
		ex := Extraction{
			Language:   lua.LVAsString(entry.RawGetString("language")),
			Standalone: lua.LVAsBool(entry.RawGetString("standalone")),
			// 1-based inclusive in Lua, 0-based half-open here.
			StartLine: int(lua.LVAsNumber(entry.RawGetString("start_line"))) - 1,
			EndLine:   int(lua.LVAsNumber(entry.RawGetString("end_line"))),
			Text:      lua.LVAsString(entry.RawGetString("text")),
		}
		if ex.StartLine < 0 || ex.EndLine <= ex.StartLine {
			convErr = fmt.Errorf("extraction entry has invalid line range [%d, %d)", ex.StartLine, ex.EndLine)
			return
		}
		out = append(out, ex)
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}
