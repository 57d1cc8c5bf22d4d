package criterion

import (
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/signupwatch/daemon/internal/domain"
)

// CELScripter implements Scripter against google/cel-go, the sandboxed
// expression evaluator spec §4.2 calls for ("compile ... in sandbox"). CEL
// has no filesystem, network, or host-process access by construction, which
// is the actual safety property the spec is after — promoted here from the
// teacher's indirect, protovalidate-only dependency to a direct one.
//
// Programs are compiled once per distinct source string and cached, since
// rules are added far more often evaluated... rather, evaluated far more
// often than added; recompiling per signup event would be wasteful.
type CELScripter struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELScripter builds the sandbox environment: a single "user" variable
// (a string/dyn map, spec §4.2's user view) plus the two globals spec §4.2
// names, regex() and isInIpRange(), and a has_subdivision() helper over the
// user's GeoIP subdivisions list.
func NewCELScripter() (*CELScripter, error) {
	env, err := cel.NewEnv(
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Function("regex",
			cel.Overload("regex_text_pattern",
				[]*cel.Type{cel.StringType, cel.StringType}, cel.BoolType,
				cel.BinaryBinding(regexFunc))),
		cel.Function("isInIpRange",
			cel.Overload("is_in_ip_range_ip_min_max",
				[]*cel.Type{cel.StringType, cel.StringType, cel.StringType}, cel.BoolType,
				cel.FunctionBinding(isInIPRangeFunc))),
		cel.Function("has_subdivision",
			cel.Overload("has_subdivision_list_value",
				[]*cel.Type{cel.ListType(cel.StringType), cel.StringType}, cel.BoolType,
				cel.BinaryBinding(hasSubdivisionFunc))),
	)
	if err != nil {
		return nil, fmt.Errorf("criterion: build cel env: %w", err)
	}
	return &CELScripter{env: env, programs: make(map[string]cel.Program)}, nil
}

func regexFunc(textVal, patternVal ref.Val) ref.Val {
	text, ok := textVal.Value().(string)
	if !ok {
		return types.NewErr("regex: text must be a string")
	}
	pattern, ok := patternVal.Value().(string)
	if !ok {
		return types.NewErr("regex: pattern must be a string")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return types.NewErr("regex: invalid pattern %q: %v", pattern, err)
	}
	return types.Bool(re.MatchString(text))
}

func isInIPRangeFunc(args ...ref.Val) ref.Val {
	if len(args) != 3 {
		return types.NewErr("isInIpRange: expected 3 arguments")
	}
	ipStr, _ := args[0].Value().(string)
	minStr, _ := args[1].Value().(string)
	maxStr, _ := args[2].Value().(string)

	ip := net.ParseIP(ipStr)
	min := net.ParseIP(minStr)
	max := net.ParseIP(maxStr)
	if ip == nil || min == nil || max == nil {
		return types.NewErr("isInIpRange: invalid IP literal")
	}
	ip4, min4, max4 := ip.To16(), min.To16(), max.To16()
	if ip4 == nil || min4 == nil || max4 == nil {
		return types.NewErr("isInIpRange: unparseable IP")
	}
	return types.Bool(bytesCompare(min4, ip4) <= 0 && bytesCompare(ip4, max4) <= 0)
}

func bytesCompare(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func hasSubdivisionFunc(listVal, valueVal ref.Val) ref.Val {
	value, ok := valueVal.Value().(string)
	if !ok {
		return types.NewErr("has_subdivision: value must be a string")
	}
	list, err := listVal.ConvertToNative(stringSliceType)
	if err != nil {
		return types.NewErr("has_subdivision: %v", err)
	}
	subs, ok := list.([]string)
	if !ok {
		return types.NewErr("has_subdivision: expected a string list")
	}
	for _, s := range subs {
		if strings.EqualFold(s, value) {
			return types.Bool(true)
		}
	}
	return types.Bool(false)
}

var stringSliceType = reflect.TypeOf([]string{})

// userView builds the map the sandbox's "user" variable binds to, one key
// per accessor named in spec §4.2 (name, email, ip, ua, fp, country, city,
// subdivisions, device, os, client). CEL has no notion of zero-argument
// method calls against a dynamic value, so field access (user.country) is
// the idiomatic CEL rendering of the spec's user.country() accessor.
func userView(u domain.User) map[string]any {
	return map[string]any{
		"name":         u.Username,
		"email":        u.Email,
		"ip":           u.IP,
		"ua":           u.ScriptUA(),
		"fp":           u.ScriptPrint(),
		"country":      u.ScriptCountry(),
		"city":         u.ScriptCity(),
		"subdivisions": subdivisionsOrEmpty(u),
		"device":       u.ScriptDevice(),
		"os":           u.ScriptOS(),
		"client":       u.ScriptClient(),
	}
}

func subdivisionsOrEmpty(u domain.User) []string {
	if u.GeoIP == nil {
		return []string{}
	}
	return u.GeoIP.Subdivisions
}

// Eval compiles (or reuses a cached compilation of) source as a boolean CEL
// expression and evaluates it against user. Compile and runtime errors both
// surface as a ScriptError, never a panic (spec §4.2: "does not terminate
// the dispatcher").
func (s *CELScripter) Eval(source string, user domain.User) (bool, error) {
	prg, err := s.programFor(source)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{"user": userView(user)})
	if err != nil {
		return false, &ScriptError{Err: fmt.Errorf("evaluating %q: %w", source, err)}
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, &ScriptError{Err: fmt.Errorf("script %q did not return a boolean", source)}
	}
	return b, nil
}

func (s *CELScripter) programFor(source string) (cel.Program, error) {
	s.mu.RLock()
	prg, ok := s.programs[source]
	s.mu.RUnlock()
	if ok {
		return prg, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prg, ok := s.programs[source]; ok {
		return prg, nil
	}

	ast, issues := s.env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, &ScriptError{Err: fmt.Errorf("compiling %q: %w", source, issues.Err())}
	}
	prg, err := s.env.Program(ast)
	if err != nil {
		return nil, &ScriptError{Err: fmt.Errorf("planning %q: %w", source, err)}
	}
	s.programs[source] = prg
	return prg, nil
}
