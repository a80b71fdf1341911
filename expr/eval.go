package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// evalNode walks one statement tree against the extracted parameter values.
// Errors abort only the statement being evaluated; the program-level loop
// treats them as "statement does not apply".
func evalNode(n *Node, env map[string]any) (any, error) {
	switch n.Kind {
	case kindLiteral:
		if n.Null {
			return nil, nil
		}
		return n.Value, nil

	case kindPath:
		return env[n.Param], nil

	case kindExist:
		return !IsAbsent(env[n.Param]), nil

	case kindCmp:
		left, err := evalNode(n.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := evalNode(n.Right, env)
		if err != nil {
			return nil, err
		}
		return compare(n.Op, left, right)

	case kindAnd:
		left, err := evalBool(n.Left, env)
		if err != nil {
			return nil, err
		}
		if !left {
			return false, nil
		}
		return evalBool(n.Right, env)

	case kindOr:
		left, err := evalBool(n.Left, env)
		if err != nil {
			return nil, err
		}
		if left {
			return true, nil
		}
		return evalBool(n.Right, env)

	case kindNot:
		operand, err := evalBool(n.Left, env)
		if err != nil {
			return nil, err
		}
		return !operand, nil

	case kindWhen:
		matched, err := evalBool(n.Cond, env)
		if err != nil {
			return nil, err
		}
		if matched {
			return evalNode(n.Then, env)
		}
		if n.Else != nil {
			return evalNode(n.Else, env)
		}
		return Absent, nil
	}

	return nil, fmt.Errorf("unknown node kind %q", n.Kind)
}

func evalBool(n *Node, env map[string]any) (bool, error) {
	v, err := evalNode(n, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("condition evaluated to non-boolean %T", v)
	}
	return b, nil
}

// compare applies one comparison operator. Numeric operands compare as
// float64 regardless of concrete type; strings compare lexically. The
// absent sentinel participates only in eq/neq, where it equals nothing but
// itself; any other use is an evaluation error, which skips the statement.
func compare(op string, left, right any) (bool, error) {
	switch op {
	case "eq":
		return looseEqual(left, right), nil
	case "neq":
		return !looseEqual(left, right), nil
	}

	if IsAbsent(left) || IsAbsent(right) {
		return false, fmt.Errorf("operator %s applied to absent value", op)
	}

	switch op {
	case "gt", "lt", "gte", "lte":
		return ordered(op, left, right)

	case "contains":
		return contains(left, right)

	case "starts_with":
		ls, rs, err := stringPair(op, left, right)
		if err != nil {
			return false, err
		}
		return strings.HasPrefix(ls, rs), nil

	case "ends_with":
		ls, rs, err := stringPair(op, left, right)
		if err != nil {
			return false, err
		}
		return strings.HasSuffix(ls, rs), nil
	}

	return false, fmt.Errorf("%w: %s", ErrInvalidOperator, op)
}

func looseEqual(left, right any) bool {
	if lf, lok := toFloat(left); lok {
		rf, rok := toFloat(right)
		return rok && lf == rf
	}
	return reflect.DeepEqual(left, right)
}

func ordered(op string, left, right any) (bool, error) {
	if lf, lok := toFloat(left); lok {
		rf, rok := toFloat(right)
		if !rok {
			return false, fmt.Errorf("operator %s: mixed operand types %T and %T", op, left, right)
		}
		switch op {
		case "gt":
			return lf > rf, nil
		case "lt":
			return lf < rf, nil
		case "gte":
			return lf >= rf, nil
		default:
			return lf <= rf, nil
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if !lok || !rok {
		return false, fmt.Errorf("operator %s: unorderable operand types %T and %T", op, left, right)
	}
	switch op {
	case "gt":
		return ls > rs, nil
	case "lt":
		return ls < rs, nil
	case "gte":
		return ls >= rs, nil
	default:
		return ls <= rs, nil
	}
}

// contains implements right-in-left membership: substring for strings,
// element membership for lists, key membership for maps.
func contains(left, right any) (bool, error) {
	switch l := left.(type) {
	case string:
		rs, ok := right.(string)
		if !ok {
			return false, fmt.Errorf("contains: string haystack needs string needle, got %T", right)
		}
		return strings.Contains(l, rs), nil

	case []any:
		for _, elem := range l {
			if looseEqual(elem, right) {
				return true, nil
			}
		}
		return false, nil

	case map[string]any:
		rs, ok := right.(string)
		if !ok {
			return false, fmt.Errorf("contains: map haystack needs string key, got %T", right)
		}
		_, found := l[rs]
		return found, nil
	}

	return false, fmt.Errorf("contains: unsupported haystack type %T", left)
}

func stringPair(op string, left, right any) (string, string, error) {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if !lok || !rok {
		return "", "", fmt.Errorf("operator %s: needs string operands, got %T and %T", op, left, right)
	}
	return ls, rs, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
