package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value rendering
// ---------------------------------------------------------------------------

// renderValue formats v for display. Symbols and keywords need the
// runtime's symbol table; everything else renders from the value alone.
func renderValue(rt *Runtime, v Value) string {
	switch {
	case v.IsNumber():
		n := v.Number()
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)

	case v.IsNil():
		return "nil"
	case v.IsTrue():
		return "true"
	case v.IsFalse():
		return "false"

	case v.IsSymbol():
		return rt.Symbols.Name(v.SymbolID())
	case v.IsKeyword():
		return ":" + rt.Symbols.KeywordName(v.KeywordID())

	case v.IsNative():
		return fmt.Sprintf("#<native %s>", rt.Natives.Name(v.NativeID()))

	case v.IsModule():
		if mod := rt.Modules.Get(v.ModuleID()); mod != nil {
			return fmt.Sprintf("#<module %s>", mod.Name)
		}
		return "#<module ?>"

	case v.IsObject():
		return renderObject(rt, v)

	default:
		return "#<unknown>"
	}
}

func renderObject(rt *Runtime, v Value) string {
	switch typeTagOf(v) {
	case TagStr:
		return v.AsStr().String()

	case TagList:
		var sb strings.Builder
		sb.WriteByte('(')
		v.AsList().ForEach(func(i int, e Value) {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(renderValue(rt, e))
		})
		sb.WriteByte(')')
		return sb.String()

	case TagVector:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.AsVector().ToSlice() {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(renderValue(rt, e))
		}
		sb.WriteByte(']')
		return sb.String()

	case TagMap:
		var sb strings.Builder
		sb.WriteByte('{')
		first := true
		v.AsMap().ForEach(func(k, val Value) {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(renderValue(rt, k))
			sb.WriteByte(' ')
			sb.WriteString(renderValue(rt, val))
		})
		sb.WriteByte('}')
		return sb.String()

	case TagSet:
		var sb strings.Builder
		sb.WriteString("#{")
		first := true
		v.AsSet().ForEach(func(e Value) {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			sb.WriteString(renderValue(rt, e))
		})
		sb.WriteByte('}')
		return sb.String()

	case TagError:
		return "#<error " + v.AsError().Render() + ">"

	case TagFunction:
		name := v.AsFunction().name
		if name == "" {
			name = "anonymous"
		}
		return "#<fn " + name + ">"

	case TagMacro:
		return "#<macro " + v.AsMacro().name + ">"

	case TagFuture:
		return "#<future>"

	case TagEnv:
		return "#<env>"

	default:
		return "#<" + typeTagOf(v).String() + ">"
	}
}

// Render formats a value for display using this runtime's tables.
func (rt *Runtime) Render(v Value) string {
	return renderValue(rt, v)
}
