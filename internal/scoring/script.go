package scoring

import (
	"fmt"
	"math"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"domino/internal/domain"
)

const scoreFunc = "score"

// Script scores rounds with a Lua function:
//
//	function score(outcome, winner, pips)
//	  -- outcome: "completed" | "blocked", winner: team or "", pips: {A=12, B=3}
//	  return {A = 0, B = 9}
//	end
//
// Teams missing from the returned table score zero.
type Script struct {
	mu sync.Mutex
	L  *lua.LState
}

// NewScript compiles the source and checks that it defines score.
func NewScript(source string) (*Script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
		{lua.StringLibName, lua.OpenString},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open lua %s: %w", lib.name, err)
		}
	}
	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, fmt.Errorf("load scoring script: %w", err)
	}
	if L.GetGlobal(scoreFunc).Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("scoring script does not define %s()", scoreFunc)
	}
	return &Script{L: L}, nil
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring script: %w", err)
	}
	return NewScript(string(src))
}

func (s *Script) Score(in Input) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pips := s.L.NewTable()
	for _, team := range in.Teams {
		pips.RawSetString(team, lua.LNumber(in.TeamPips[team]))
	}

	err := s.L.CallByParam(lua.P{
		Fn:      s.L.GetGlobal(scoreFunc),
		NRet:    1,
		Protect: true,
	}, lua.LString(in.Outcome), lua.LString(in.WinnerTeam), pips)
	if err != nil {
		return nil, fmt.Errorf("%w: scoring script: %v", domain.ErrProtocolViolation, err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: scoring script returned %s, want table", domain.ErrProtocolViolation, ret.Type())
	}

	deltas := make(map[string]int, len(in.Teams))
	for _, team := range in.Teams {
		deltas[team] = 0
	}
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		team := k.String()
		if _, seated := deltas[team]; !seated {
			if convErr == nil {
				convErr = fmt.Errorf("%w: scoring script returned unknown team %q", domain.ErrProtocolViolation, team)
			}
			return
		}
		n, ok := v.(lua.LNumber)
		if !ok {
			if convErr == nil {
				convErr = fmt.Errorf("%w: delta for %q is %s", domain.ErrProtocolViolation, team, v.Type())
			}
			return
		}
		if f := float64(n); f != math.Trunc(f) {
			if convErr == nil {
				convErr = fmt.Errorf("%w: delta for %q is not a whole number: %v", domain.ErrProtocolViolation, team, f)
			}
			return
		}
		deltas[team] = int(n)
	})
	if convErr != nil {
		return nil, convErr
	}
	return deltas, nil
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}
