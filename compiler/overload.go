package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/basil/vm"
)

// ErrAmbiguousCall is wrapped by the error ResolveOverload returns when two
// candidates fit equally well.
var ErrAmbiguousCall = errors.New("ambiguous call")

// Overload scores per argument. A widening conversion scores scoreWiden
// minus the number of steps it climbs, so the nearest wider type wins.
const (
	scoreLoose  = 1 // raw parameter, or argument type not yet known
	scoreNarrow = 2 // numeric conversion that can lose range or precision
	scoreWiden  = 10
	scoreExact  = 12
)

// ResolveOverload picks the candidate that best fits the argument types.
// types[i] may be nil when the argument's type is unknown at parse time;
// lvalues[i] reports whether argument i names writable storage.
func ResolveOverload(name string, cands []*vm.CommandInfo, types []*Type, lvalues []bool) (*vm.CommandInfo, error) {
	if len(cands) == 0 {
		return nil, fmt.Errorf("unknown command %s", name)
	}
	var best, tied *vm.CommandInfo
	bestScore := -1
	for _, c := range cands {
		score, ok := scoreOverload(c, types, lvalues)
		if !ok {
			continue
		}
		switch {
		case score > bestScore:
			best, tied, bestScore = c, nil, score
		case score == bestScore:
			tied = c
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no overload of %s accepts (%s)", name, describeArgs(types))
	}
	if tied != nil {
		return nil, fmt.Errorf("%w to %s: %s and %s both match", ErrAmbiguousCall, name, best.Signature, tied.Signature)
	}
	return best, nil
}

func scoreOverload(c *vm.CommandInfo, types []*Type, lvalues []bool) (int, bool) {
	params := c.Visible()
	n := len(types)
	if n < c.Required() {
		return 0, false
	}
	if !c.Variadic() && n > len(params) {
		return 0, false
	}
	total := 0
	for i, t := range types {
		spec := params[len(params)-1]
		if i < len(params) {
			spec = params[i]
		}
		s, ok := scoreArg(spec, t, lvalues[i])
		if !ok {
			return 0, false
		}
		total += s
	}
	return total, true
}

func scoreArg(spec vm.ArgSpec, t *Type, lvalue bool) (int, bool) {
	if spec.Ref {
		if !lvalue {
			return 0, false
		}
		switch {
		case t == nil || t.Bad:
			return scoreLoose, true
		case t.IsScalar() && t.Code == spec.Type:
			return scoreExact, true
		}
		return 0, false
	}
	switch {
	case t == nil || t.Bad:
		return scoreLoose, true
	case !t.IsScalar():
		return 0, false
	case spec.Raw:
		return scoreLoose, true
	case t.Code == spec.Type:
		return scoreExact, true
	case t.Code.IsNumeric() && spec.Type.IsNumeric():
		if d := vm.WideningDistance(t.Code, spec.Type); d > 0 {
			return scoreWiden - d, true
		}
		return scoreNarrow, true
	}
	return 0, false
}

func describeArgs(types []*Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
