package pipeline

import (
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Namespace is the variable lookup used to evaluate a step's condition
// expression: task fields, step_config, and the flat artifacts of all
// previous steps' results (spec §4.4 step 1).
type Namespace map[string]any

// namedShortcuts are condition expressions recognized by name rather than
// parsed as "var op literal" (spec §4.4 step 1).
var namedShortcuts = map[string]func(Namespace) bool{
	"skip_if_docs_only":    skipIfDocsOnly,
	"skip_if_small_change": skipIfSmallChange,
}

// EvalCondition evaluates expr against ns. An empty expr always runs. An
// unrecognized expression "falls through to run" per spec, i.e. evaluates
// true.
func EvalCondition(expr string, ns Namespace) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}
	if fn, ok := namedShortcuts[expr]; ok {
		// fn reports whether the named condition to *skip* holds; EvalCondition
		// returns whether the step should *run*, so the sense is inverted.
		return !fn(ns)
	}
	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if idx := strings.Index(expr, op); idx >= 0 {
			left := strings.TrimSpace(expr[:idx])
			right := strings.TrimSpace(expr[idx+len(op):])
			return evalComparison(ns, left, op, right)
		}
	}
	// Unrecognized expression: run by default.
	return true
}

func evalComparison(ns Namespace, left, op, right string) bool {
	lv, ok := ns[left]
	if !ok {
		return true
	}
	rightLit := strings.Trim(right, `"'`)

	if op == "==" || op == "!=" {
		eq := toComparableString(lv) == rightLit
		if op == "==" {
			return eq
		}
		return !eq
	}

	lnum, lok := toFloat(lv)
	rnum, rok := strconv.ParseFloat(rightLit, 64)
	if !lok || rok != nil {
		return true
	}
	switch op {
	case ">":
		return lnum > rnum
	case "<":
		return lnum < rnum
	case ">=":
		return lnum >= rnum
	case "<=":
		return lnum <= rnum
	default:
		return true
	}
}

func toComparableString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		if f, ok := toFloat(v); ok {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// skipIfDocsOnly reports true (skip) when every changed file under the
// namespace's "changed_files" key matches a documentation glob.
func skipIfDocsOnly(ns Namespace) bool {
	files, ok := ns["changed_files"].([]string)
	if !ok || len(files) == 0 {
		return false
	}
	docGlobs := []string{"**/*.md", "**/*.txt", "docs/**"}
	for _, f := range files {
		matched := false
		for _, g := range docGlobs {
			if ok, _ := doublestar.Match(g, f); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// skipIfSmallChange reports true (skip) when "lines_changed" is present and
// below a fixed threshold.
func skipIfSmallChange(ns Namespace) bool {
	v, ok := ns["lines_changed"]
	if !ok {
		return false
	}
	n, ok := toFloat(v)
	if !ok {
		return false
	}
	return n < 10
}
