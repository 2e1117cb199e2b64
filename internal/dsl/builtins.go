package dsl

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

type builtinFunc func(args []Value) (Value, error)

// builtins is the exhaustive function table requires every
// implementation to provide. Several (map/filter/find/sort) take a field
// name rather than a callback, since the grammar has no anonymous-function
// syntax to pass a predicate as a value.
var builtins = map[string]builtinFunc{
	"toString": biToString,
	"toNumber": biToNumber,
	"toJSON":   biToJSON,
	"fromJSON": biFromJSON,
	"length":   biLength,
	"map":      biMap,
	"filter":   biFilter,
	"find":     biFind,
	"sort":     biSort,
	"slice":    biSlice,
	"concat":   biConcat,
	"join":     biJoin,
	"keys":     biKeys,
	"values":   biValues,
	"merge":    biMerge,
	"pick":     biPick,
	"omit":     biOmit,
	"split":    biSplit,
	"replace":  biReplace,
	"match":    biMatch,
	"extract":  biExtract,
	"default":  biDefault,
	"jsonpath": biJSONPath,
}

func argErr(name string, want int, got int) error {
	return fmt.Errorf("%s: expected %d argument(s), got %d", name, want, got)
}

func biToString(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, argErr("toString", 1, len(args))
	}
	return String(args[0].AsString()), nil
}

func biToNumber(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, argErr("toNumber", 1, len(args))
	}
	f, err := args[0].AsNumber()
	if err != nil {
		return Null, err
	}
	return Number(f), nil
}

func biToJSON(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, argErr("toJSON", 1, len(args))
	}
	b, err := json.Marshal(args[0].ToAny())
	if err != nil {
		return Null, fmt.Errorf("toJSON: %w", err)
	}
	return String(string(b)), nil
}

func biFromJSON(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, argErr("fromJSON", 1, len(args))
	}
	if args[0].Kind() != KindString {
		return Null, fmt.Errorf("fromJSON: argument must be a string")
	}
	var a any
	if err := json.Unmarshal([]byte(args[0].str), &a); err != nil {
		return Null, fmt.Errorf("fromJSON: %w", err)
	}
	return FromAny(a), nil
}

func biLength(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, argErr("length", 1, len(args))
	}
	switch args[0].Kind() {
	case KindString:
		return Number(float64(len([]rune(args[0].str)))), nil
	case KindSeq:
		return Number(float64(len(args[0].seq))), nil
	case KindMap:
		return Number(float64(len(args[0].m))), nil
	case KindNull:
		return Number(0), nil
	default:
		return Null, fmt.Errorf("length: unsupported operand kind %s", args[0].Kind())
	}
}

func biMap(args []Value) (Value, error) {
	if len(args) != 2 {
		return Null, argErr("map", 2, len(args))
	}
	seq, field := args[0], args[1].AsString()
	if seq.Kind() != KindSeq {
		return Null, fmt.Errorf("map: first argument must be a sequence")
	}
	out := make([]Value, len(seq.seq))
	for i, item := range seq.seq {
		out[i] = item.Member(field)
	}
	return Seq(out), nil
}

func biFilter(args []Value) (Value, error) {
	if len(args) != 3 {
		return Null, argErr("filter", 3, len(args))
	}
	seq, field, want := args[0], args[1].AsString(), args[2]
	if seq.Kind() != KindSeq {
		return Null, fmt.Errorf("filter: first argument must be a sequence")
	}
	var out []Value
	for _, item := range seq.seq {
		if item.Member(field).Equal(want) {
			out = append(out, item)
		}
	}
	return Seq(out), nil
}

func biFind(args []Value) (Value, error) {
	if len(args) != 3 {
		return Null, argErr("find", 3, len(args))
	}
	seq, field, want := args[0], args[1].AsString(), args[2]
	if seq.Kind() != KindSeq {
		return Null, fmt.Errorf("find: first argument must be a sequence")
	}
	for _, item := range seq.seq {
		if item.Member(field).Equal(want) {
			return item, nil
		}
	}
	return Null, nil
}

func biSort(args []Value) (Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return Null, fmt.Errorf("sort: expected 1 or 2 arguments, got %d", len(args))
	}
	if args[0].Kind() != KindSeq {
		return Null, fmt.Errorf("sort: first argument must be a sequence")
	}
	out := append([]Value(nil), args[0].seq...)
	key := func(v Value) Value { return v }
	if len(args) == 2 {
		field := args[1].AsString()
		key = func(v Value) Value { return v.Member(field) }
	}
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		less, err := key(out[i]).Less(key(out[j]))
		if err != nil {
			sortErr = err
		}
		return less
	})
	if sortErr != nil {
		return Null, fmt.Errorf("sort: %w", sortErr)
	}
	return Seq(out), nil
}

func biSlice(args []Value) (Value, error) {
	if len(args) != 3 {
		return Null, argErr("slice", 3, len(args))
	}
	startF, err := args[1].AsNumber()
	if err != nil {
		return Null, err
	}
	endF, err := args[2].AsNumber()
	if err != nil {
		return Null, err
	}
	start, end := clampRange(int(startF), int(endF), seqLen(args[0]))

	switch args[0].Kind() {
	case KindSeq:
		return Seq(append([]Value(nil), args[0].seq[start:end]...)), nil
	case KindString:
		r := []rune(args[0].str)
		return String(string(r[start:end])), nil
	default:
		return Null, fmt.Errorf("slice: unsupported operand kind %s", args[0].Kind())
	}
}

func seqLen(v Value) int {
	switch v.Kind() {
	case KindSeq:
		return len(v.seq)
	case KindString:
		return len([]rune(v.str))
	default:
		return 0
	}
}

func clampRange(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

func biConcat(args []Value) (Value, error) {
	if len(args) == 0 {
		return Seq(nil), nil
	}
	if args[0].Kind() == KindString {
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(a.AsString())
		}
		return String(sb.String()), nil
	}
	var out []Value
	for _, a := range args {
		if a.Kind() != KindSeq {
			return Null, fmt.Errorf("concat: all arguments must be sequences")
		}
		out = append(out, a.seq...)
	}
	return Seq(out), nil
}

func biJoin(args []Value) (Value, error) {
	if len(args) != 2 {
		return Null, argErr("join", 2, len(args))
	}
	if args[0].Kind() != KindSeq {
		return Null, fmt.Errorf("join: first argument must be a sequence")
	}
	sep := args[1].AsString()
	parts := make([]string, len(args[0].seq))
	for i, item := range args[0].seq {
		parts[i] = item.AsString()
	}
	return String(strings.Join(parts, sep)), nil
}

func biKeys(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, argErr("keys", 1, len(args))
	}
	if args[0].Kind() != KindMap {
		return Null, fmt.Errorf("keys: argument must be a mapping")
	}
	ks := args[0].SortedKeys()
	out := make([]Value, len(ks))
	for i, k := range ks {
		out[i] = String(k)
	}
	return Seq(out), nil
}

func biValues(args []Value) (Value, error) {
	if len(args) != 1 {
		return Null, argErr("values", 1, len(args))
	}
	if args[0].Kind() != KindMap {
		return Null, fmt.Errorf("values: argument must be a mapping")
	}
	ks := args[0].SortedKeys()
	out := make([]Value, len(ks))
	for i, k := range ks {
		out[i] = args[0].m[k]
	}
	return Seq(out), nil
}

func biMerge(args []Value) (Value, error) {
	out := map[string]Value{}
	for _, a := range args {
		if a.Kind() != KindMap {
			return Null, fmt.Errorf("merge: all arguments must be mappings")
		}
		for k, v := range a.m {
			out[k] = v
		}
	}
	return Map(out), nil
}

func biPick(args []Value) (Value, error) {
	if len(args) < 1 {
		return Null, fmt.Errorf("pick: expected at least 1 argument, got 0")
	}
	if args[0].Kind() != KindMap {
		return Null, fmt.Errorf("pick: first argument must be a mapping")
	}
	out := map[string]Value{}
	for _, k := range args[1:] {
		name := k.AsString()
		if v, ok := args[0].m[name]; ok {
			out[name] = v
		}
	}
	return Map(out), nil
}

func biOmit(args []Value) (Value, error) {
	if len(args) < 1 {
		return Null, fmt.Errorf("omit: expected at least 1 argument, got 0")
	}
	if args[0].Kind() != KindMap {
		return Null, fmt.Errorf("omit: first argument must be a mapping")
	}
	drop := map[string]bool{}
	for _, k := range args[1:] {
		drop[k.AsString()] = true
	}
	out := map[string]Value{}
	for k, v := range args[0].m {
		if !drop[k] {
			out[k] = v
		}
	}
	return Map(out), nil
}

func biSplit(args []Value) (Value, error) {
	if len(args) != 2 {
		return Null, argErr("split", 2, len(args))
	}
	parts := strings.Split(args[0].AsString(), args[1].AsString())
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = String(p)
	}
	return Seq(out), nil
}

func biReplace(args []Value) (Value, error) {
	if len(args) != 3 {
		return Null, argErr("replace", 3, len(args))
	}
	return String(strings.ReplaceAll(args[0].AsString(), args[1].AsString(), args[2].AsString())), nil
}

func biMatch(args []Value) (Value, error) {
	if len(args) != 2 {
		return Null, argErr("match", 2, len(args))
	}
	re, err := regexp.Compile(args[1].AsString())
	if err != nil {
		return Null, fmt.Errorf("match: invalid pattern: %w", err)
	}
	return Bool(re.MatchString(args[0].AsString())), nil
}

func biExtract(args []Value) (Value, error) {
	if len(args) != 2 {
		return Null, argErr("extract", 2, len(args))
	}
	re, err := regexp.Compile(args[1].AsString())
	if err != nil {
		return Null, fmt.Errorf("extract: invalid pattern: %w", err)
	}
	m := re.FindStringSubmatch(args[0].AsString())
	if m == nil {
		return Null, nil
	}
	if len(m) > 1 {
		return String(m[1]), nil
	}
	return String(m[0]), nil
}

// biJSONPath extracts a field from a mapping/sequence response using a
// JSONPath expression, grounded on the same `mcpany-core` manifest evidence
// in the retrieved example pool: PaesslerAG/jsonpath is the natural way to
// pull a field out of an upstream JSON response_body without writing a
// bespoke member chain for every shape.
func biJSONPath(args []Value) (Value, error) {
	if len(args) != 2 {
		return Null, argErr("jsonpath", 2, len(args))
	}
	result, err := jsonpath.Get(args[1].AsString(), args[0].ToAny())
	if err != nil {
		return Null, fmt.Errorf("jsonpath: %w", err)
	}
	return FromAny(result), nil
}

func biDefault(args []Value) (Value, error) {
	if len(args) != 2 {
		return Null, argErr("default", 2, len(args))
	}
	if args[0].IsNull() {
		return args[1], nil
	}
	return args[0], nil
}
