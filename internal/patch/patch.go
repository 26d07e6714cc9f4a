// Package patch implements the patch algebra used to fold layered
// descriptor fragments (the overlay chain produced by `extend`) into a
// single descriptor.
//
// All composable collections are represented as patches with a small,
// uniform operation language. Numeric indices always refer to positions
// in the base list as it existed before the patch was applied.
package patch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// AnyUnmarshaler is implemented by every patch type (and by any scalar
// wrapper type, such as ImageName, that accepts a permissive string
// shortcut). Convert dispatches to it when the target implements it;
// otherwise it falls back to a JSON round-trip for plain data.
type AnyUnmarshaler interface {
	UnmarshalAny(v any) error
}

// Convert decodes a generic YAML/JSON-shaped value (string, bool,
// float64, []any, map[string]any, or nil) into out. If *T implements
// AnyUnmarshaler, that is used directly; otherwise out is populated via
// a JSON round-trip, which is sufficient for plain scalars and structs
// tagged with `json:"..."`.
func Convert[T any](v any, out *T) error {
	if au, ok := any(out).(AnyUnmarshaler); ok {
		return au.UnmarshalAny(v)
	}

	// YAML happily writes `PORT: 8080` where a string value is
	// expected; coerce scalars into string targets instead of failing
	// the round-trip below.
	if sp, ok := any(out).(*string); ok {
		switch vv := v.(type) {
		case string:
			*sp = vv
			return nil
		case nil:
			*sp = ""
			return nil
		case bool, int, int64, uint64, float64:
			*sp = fmt.Sprint(vv)
			return nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "error re-encoding value")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "error decoding value")
	}
	return nil
}

func convertList[T any](items []any) ([]T, error) {
	out := make([]T, len(items))
	for i, item := range items {
		if err := Convert(item, &out[i]); err != nil {
			return nil, errors.Wrapf(err, "index %d", i)
		}
	}
	return out, nil
}

// convertListOrScalar accepts either a bare scalar (wrapped into a
// one-element list) or a list, matching the "single scalar where a list
// is expected" permissive rule.
func convertListOrScalar[T any](v any) ([]T, error) {
	if list, ok := v.([]any); ok {
		return convertList[T](list)
	}
	var single T
	if err := Convert(v, &single); err != nil {
		return nil, err
	}
	return []T{single}, nil
}

// UnmarshalJSON implements json.Unmarshaler by decoding into a generic
// tree and delegating to UnmarshalAny, keeping JSON and YAML decoding on
// exactly one code path.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return f.UnmarshalAny(v)
}

func (p *VecPatch[T]) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return p.UnmarshalAny(v)
}

func (p *VecDeepPatch[T, P]) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return p.UnmarshalAny(v)
}

func (p *HashMapPatch[K, V]) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return p.UnmarshalAny(v)
}

func (p *HashMapDeepPatch[K, V, P]) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return p.UnmarshalAny(v)
}

func (n *NestedMap) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return n.UnmarshalAny(v)
}

// Field is an optional scalar or struct override. A present Field
// replaces the base value; an absent Field leaves the base untouched.
type Field[T any] struct {
	Value T
	set   bool
}

// Set constructs a present Field.
func Set[T any](v T) Field[T] {
	return Field[T]{Value: v, set: true}
}

// IsSet reports whether the field was present in the decoded patch.
func (f Field[T]) IsSet() bool { return f.set }

// Apply returns the field's value if set, otherwise base.
func (f Field[T]) Apply(base T) T {
	if !f.set {
		return base
	}
	return f.Value
}

// UnmarshalAny decodes a generic (already YAML/JSON decoded) value into
// the field, marking it as set.
func (f *Field[T]) UnmarshalAny(v any) error {
	var out T
	if err := Convert(v, &out); err != nil {
		return err
	}
	f.Value = out
	f.set = true
	return nil
}

// vecOp is a single operation in a VecPatch's operation map, keyed by
// the order it must be applied: replace, before, after, append.
type vecOpKind int

const (
	opReplace vecOpKind = iota
	opSetAt
	opInsertBefore
	opInsertAfter
	opAppend
)

type vecOp[T any] struct {
	kind  vecOpKind
	index int
	items []T
}

// VecPatch is a sequence patch over primitive (non-deep-mergeable)
// elements.
type VecPatch[T any] struct {
	ops []vecOp[T]
}

// replace reports whether this patch fully replaces the base sequence.
func (p VecPatch[T]) replace() ([]T, bool) {
	for _, op := range p.ops {
		if op.kind == opReplace {
			return op.items, true
		}
	}
	return nil, false
}

// Apply folds the patch onto base, per the base-relative index rules
// documented on the package.
func (p VecPatch[T]) Apply(base []T) []T {
	if items, ok := p.replace(); ok {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}

	// index -> replacement value, applied first
	sets := map[int]T{}
	beforeAt := map[int][]T{}
	afterAt := map[int][]T{}
	var appendItems []T

	for _, op := range p.ops {
		switch op.kind {
		case opSetAt:
			if len(op.items) > 0 {
				sets[op.index] = op.items[0]
			}
		case opInsertBefore:
			beforeAt[op.index] = append(beforeAt[op.index], op.items...)
		case opInsertAfter:
			afterAt[op.index] = append(afterAt[op.index], op.items...)
		case opAppend:
			appendItems = append(appendItems, op.items...)
		}
	}

	out := make([]T, 0, len(base)+len(appendItems))
	for i, v := range base {
		if ins, ok := beforeAt[i]; ok {
			out = append(out, ins...)
		}
		if replacement, ok := sets[i]; ok {
			v = replacement
		}
		out = append(out, v)
		if ins, ok := afterAt[i]; ok {
			out = append(out, ins...)
		}
	}
	out = append(out, appendItems...)
	return out
}

// UnmarshalAny decodes the permissive VecPatch grammar:
//
//	bare scalar / bare list -> replace
//	{"_": [...]}            -> replace
//	{"N": [...]}             -> set element N
//	{"+N": [...]}            -> insert before N
//	{"N+": [...]}            -> insert after N
//	{"+": [...]}             -> append
func (p *VecPatch[T]) UnmarshalAny(v any) error {
	ops, err := decodeVecOps[T](v, false)
	if err != nil {
		return err
	}
	p.ops = ops
	return nil
}

// decodeVecOps implements the shared grammar used by both VecPatch and
// VecDeepPatch. VecDeepPatch additionally accepts "N<" merge operations;
// it splits those keys off before calling here, and the bool argument
// is unused.
func decodeVecOps[T any](v any, _ bool) ([]vecOp[T], error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []any:
		items, err := convertList[T](val)
		if err != nil {
			return nil, err
		}
		return []vecOp[T]{{kind: opReplace, items: items}}, nil
	case map[string]any:
		// A mapping is either an operation map ({"1": ..., "+": ...}) or,
		// when the element type is itself a struct, a single bare element
		// ({"paths": ..., "target": ...}). Counting which keys parse as
		// operations disambiguates; mixing the two is an error.
		opKeys := 0
		for k := range val {
			if isVecOpKey(k) {
				opKeys++
			}
		}
		if opKeys == len(val) {
			return decodeVecOpMap[T](val)
		}
		if opKeys > 0 {
			return nil, errors.New("sequence patch mixes operation keys with element fields")
		}
		var item T
		if err := Convert(v, &item); err != nil {
			return nil, err
		}
		return []vecOp[T]{{kind: opReplace, items: []T{item}}}, nil
	default:
		// bare scalar: becomes a one-element replace list
		var item T
		if err := Convert(v, &item); err != nil {
			return nil, err
		}
		return []vecOp[T]{{kind: opReplace, items: []T{item}}}, nil
	}
}

// isVecOpKey reports whether k is a valid sequence patch operation key
// ("_", "+", "N", "+N", "N+", "N<").
func isVecOpKey(k string) bool {
	if k == "_" || k == "+" {
		return true
	}
	trimmed := strings.TrimPrefix(k, "+")
	if trimmed == k {
		trimmed = strings.TrimSuffix(trimmed, "+")
		trimmed = strings.TrimSuffix(trimmed, "<")
	}
	if trimmed == "" {
		return false
	}
	_, err := strconv.Atoi(trimmed)
	return err == nil
}

func decodeVecOpMap[T any](m map[string]any) ([]vecOp[T], error) {
	if _, ok := m["_"]; ok && len(m) > 1 {
		return nil, errors.New("patch key \"_\" must not be combined with any other key")
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic before we classify by kind below

	var ops []vecOp[T]
	for _, k := range keys {
		raw := m[k]
		kind, idx, err := classifyVecKey(k)
		if err != nil {
			return nil, err
		}
		items, err := convertListOrScalar[T](raw)
		if err != nil {
			return nil, errors.Wrapf(err, "patch key %q", k)
		}
		ops = append(ops, vecOp[T]{kind: kind, index: idx, items: items})
	}

	// stable ordering contract: replace -> before -> after -> append,
	// with ties at the same index resolved in that key order.
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].kind != ops[j].kind {
			return ops[i].kind < ops[j].kind
		}
		return ops[i].index < ops[j].index
	})
	return ops, nil
}

func classifyVecKey(k string) (vecOpKind, int, error) {
	switch k {
	case "_":
		return opReplace, 0, nil
	case "+":
		return opAppend, 0, nil
	}
	if strings.HasPrefix(k, "+") {
		n, err := strconv.Atoi(k[1:])
		if err != nil {
			return 0, 0, errors.Errorf("invalid patch key %q: expected \"+N\"", k)
		}
		return opInsertBefore, n, nil
	}
	if strings.HasSuffix(k, "+") {
		n, err := strconv.Atoi(strings.TrimSuffix(k, "+"))
		if err != nil {
			return 0, 0, errors.Errorf("invalid patch key %q: expected \"N+\"", k)
		}
		return opInsertAfter, n, nil
	}
	if strings.HasSuffix(k, "<") {
		return 0, 0, errors.Errorf("invalid patch key %q: deep-merge keys are only valid on deep patches", k)
	}
	n, err := strconv.Atoi(k)
	if err != nil {
		return 0, 0, errors.Errorf("invalid patch key %q: expected a base-relative index", k)
	}
	return opSetAt, n, nil
}

// VecDeepPatch is a sequence patch over elements that are themselves
// patchable (struct types with a corresponding patch form). It supports
// every VecPatch operation plus "N<" deep-merge.
type VecDeepPatch[T any, P any] struct {
	ops   []vecOp[T]
	merge map[int]P
	order []int // insertion order of merge keys, for deterministic iteration
}

// UnmarshalAny decodes the VecDeepPatch grammar (VecPatch ops plus "N<").
func (p *VecDeepPatch[T, P]) UnmarshalAny(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		ops, err := decodeVecOps[T](v, true)
		if err != nil {
			return err
		}
		p.ops = ops
		return nil
	}

	opKeys := 0
	for k := range m {
		if isVecOpKey(k) {
			opKeys++
		}
	}
	if opKeys == 0 {
		// single bare struct element, not an operation map
		var item T
		if err := Convert(v, &item); err != nil {
			return err
		}
		p.ops = []vecOp[T]{{kind: opReplace, items: []T{item}}}
		return nil
	}
	if opKeys < len(m) {
		return errors.New("sequence patch mixes operation keys with element fields")
	}

	plain := map[string]any{}
	merge := map[int]P{}
	var order []int
	for k, raw := range m {
		if strings.HasSuffix(k, "<") {
			n, err := strconv.Atoi(strings.TrimSuffix(k, "<"))
			if err != nil {
				return errors.Errorf("invalid patch key %q: expected \"N<\"", k)
			}
			var pv P
			if err := Convert(raw, &pv); err != nil {
				return errors.Wrapf(err, "patch key %q", k)
			}
			merge[n] = pv
			order = append(order, n)
			continue
		}
		plain[k] = raw
	}

	ops, err := decodeVecOpMap[T](plain)
	if err != nil {
		return err
	}
	sort.Ints(order)
	p.ops = ops
	p.merge = merge
	p.order = order
	return nil
}

// Apply folds the patch onto base using mergeFn to deep-merge "N<"
// operations (and any replace/insert/append semantics inherited from
// VecPatch).
func (p VecDeepPatch[T, P]) Apply(base []T, mergeFn func(T, P) T) []T {
	vp := VecPatch[T]{ops: p.ops}
	if items, ok := vp.replace(); ok {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}

	// "N" replacements and "N<" merges address base positions, so both
	// land on a copy of base before inserts and appends shift indices.
	var setOps, shiftOps []vecOp[T]
	for _, op := range p.ops {
		if op.kind == opSetAt {
			setOps = append(setOps, op)
		} else {
			shiftOps = append(shiftOps, op)
		}
	}
	out := VecPatch[T]{ops: setOps}.Apply(base)
	for _, idx := range p.order {
		if idx >= 0 && idx < len(out) {
			out[idx] = mergeFn(out[idx], p.merge[idx])
		}
	}
	return VecPatch[T]{ops: shiftOps}.Apply(out)
}

// HashMapPatch is a key/value patch: a present non-null value
// sets/overrides the key, a present null value removes it, and an
// absent key leaves the base untouched.
type HashMapPatch[K comparable, V any] struct {
	sets    map[K]V
	deletes map[K]struct{}
}

// UnmarshalAny decodes a map where any value equal to YAML/JSON null
// removes the key.
func (p *HashMapPatch[K, V]) UnmarshalAny(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("expected a mapping, got %T", v)
	}

	sets := map[K]V{}
	deletes := map[K]struct{}{}
	for rawKey, rawVal := range m {
		var key K
		if err := Convert(rawKey, &key); err != nil {
			return err
		}
		if rawVal == nil {
			deletes[key] = struct{}{}
			continue
		}
		var val V
		if err := Convert(rawVal, &val); err != nil {
			return errors.Wrapf(err, "key %v", rawKey)
		}
		sets[key] = val
	}
	p.sets = sets
	p.deletes = deletes
	return nil
}

// Apply merges the patch into base.
func (p HashMapPatch[K, V]) Apply(base map[K]V) map[K]V {
	out := make(map[K]V, len(base)+len(p.sets))
	for k, v := range base {
		out[k] = v
	}
	for k := range p.deletes {
		delete(out, k)
	}
	for k, v := range p.sets {
		out[k] = v
	}
	return out
}

// HashMapDeepPatch is like HashMapPatch, but present values are
// patched into (not replacing) the corresponding base value.
type HashMapDeepPatch[K comparable, V any, P any] struct {
	patches map[K]P
	deletes map[K]struct{}
}

// UnmarshalAny decodes a map of patch values, keyed the same way as
// HashMapPatch (null removes a key).
func (p *HashMapDeepPatch[K, V, P]) UnmarshalAny(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("expected a mapping, got %T", v)
	}

	patches := map[K]P{}
	deletes := map[K]struct{}{}
	for rawKey, rawVal := range m {
		var key K
		if err := Convert(rawKey, &key); err != nil {
			return err
		}
		if rawVal == nil {
			deletes[key] = struct{}{}
			continue
		}
		var pv P
		if err := Convert(rawVal, &pv); err != nil {
			return errors.Wrapf(err, "key %v", rawKey)
		}
		patches[key] = pv
	}
	p.patches = patches
	p.deletes = deletes
	return nil
}

// Keys returns the patched keys in sorted order, for callers that need
// to fold the patch into an ordered collection instead of a plain map.
func (p HashMapDeepPatch[K, V, P]) Keys() []K {
	keys := make([]K, 0, len(p.patches))
	for k := range p.patches {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}

// Patch returns the patch recorded for k, if any.
func (p HashMapDeepPatch[K, V, P]) Patch(k K) (P, bool) {
	pv, ok := p.patches[k]
	return pv, ok
}

// Deleted reports whether the patch removes k.
func (p HashMapDeepPatch[K, V, P]) Deleted(k K) bool {
	_, ok := p.deletes[k]
	return ok
}

// Apply merges the patch into base using mergeFn to deep-merge a patch
// value into the existing (or zero) base value.
func (p HashMapDeepPatch[K, V, P]) Apply(base map[K]V, mergeFn func(V, P) V) map[K]V {
	out := make(map[K]V, len(base)+len(p.patches))
	for k, v := range base {
		out[k] = v
	}
	for k := range p.deletes {
		delete(out, k)
	}
	for k, pv := range p.patches {
		out[k] = mergeFn(out[k], pv)
	}
	return out
}

// NestedMap is a tree of maps whose leaves are scalars or deeper maps.
// Merging is recursive; a null value removes a subtree.
type NestedMap map[string]any

// UnmarshalAny decodes a generic mapping into a NestedMap.
func (n *NestedMap) UnmarshalAny(v any) error {
	if v == nil {
		*n = nil
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("expected a mapping, got %T", v)
	}
	*n = NestedMap(m)
	return nil
}

// Merge recursively folds patch onto base. A null leaf in patch removes
// the corresponding subtree from base.
func (n NestedMap) Merge(base NestedMap) NestedMap {
	if base == nil && n == nil {
		return nil
	}
	out := make(NestedMap, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range n {
		if v == nil {
			delete(out, k)
			continue
		}
		childPatch, patchIsMap := v.(map[string]any)
		if !patchIsMap {
			out[k] = v
			continue
		}
		var baseChild NestedMap
		if existing, ok := out[k]; ok {
			if bm, ok := existing.(map[string]any); ok {
				baseChild = NestedMap(bm)
			} else if bm, ok := existing.(NestedMap); ok {
				baseChild = bm
			}
		}
		out[k] = NestedMap(childPatch).Merge(baseChild)
	}
	return out
}

// Flatten walks the tree and calls fn for every leaf path, joining keys
// with sep (used by the LABEL emitter to produce dotted label keys).
func (n NestedMap) Flatten(sep string, fn func(path string, value string)) {
	n.flatten(nil, sep, fn)
}

func (n NestedMap) flatten(prefix []string, sep string, fn func(string, string)) {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := n[k]
		path := append(append([]string{}, prefix...), k)
		switch val := v.(type) {
		case map[string]any:
			NestedMap(val).flatten(path, sep, fn)
		case NestedMap:
			val.flatten(path, sep, fn)
		default:
			fn(strings.Join(path, sep), fmt.Sprint(val))
		}
	}
}
