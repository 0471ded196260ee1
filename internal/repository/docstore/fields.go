package docstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// serverTimestamp marks a field the store stamps with its own clock at
// write time. Resolved to UnixMicro (float64-safe) so values survive a
// JSON round trip unchanged.
type serverTimestamp struct{}

// ServerTimestamp is the write-time clock sentinel.
var ServerTimestamp any = serverTimestamp{}

type arrayUnion struct{ values []string }

// ArrayUnion merges values into a string-set field additively and
// idempotently; elements already present are not duplicated.
func ArrayUnion(values ...string) any {
	return arrayUnion{values: append([]string(nil), values...)}
}

// TimestampValue converts a field value produced by ServerTimestamp
// resolution (or a JSON round trip of one) back into a time.
func TimestampValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case int64:
		return time.UnixMicro(t).UTC(), true
	case float64:
		return time.UnixMicro(int64(t)).UTC(), true
	default:
		return time.Time{}, false
	}
}

// resolveValue replaces write sentinels in a plain field value.
func resolveValue(v any, now time.Time) any {
	switch t := v.(type) {
	case serverTimestamp:
		return now.UnixMicro()
	case arrayUnion:
		return unionInto(nil, t.values)
	default:
		return v
	}
}

// applyUpdate patches one dotted-path field into fields, creating
// intermediate maps as needed. Sibling keys are preserved.
func applyUpdate(fields map[string]any, path string, value any, now time.Time) error {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("malformed field path %q", path)
		}
	}
	target := fields
	for _, p := range parts[:len(parts)-1] {
		child, ok := target[p].(map[string]any)
		if !ok {
			child = map[string]any{}
			target[p] = child
		}
		target = child
	}
	leaf := parts[len(parts)-1]

	if u, ok := value.(arrayUnion); ok {
		target[leaf] = unionInto(target[leaf], u.values)
		return nil
	}
	target[leaf] = resolveValue(value, now)
	return nil
}

// unionInto merges add into an existing string-set field value. The result
// is sorted so repeated unions are byte-stable.
func unionInto(existing any, add []string) []string {
	set := map[string]struct{}{}
	switch cur := existing.(type) {
	case []string:
		for _, s := range cur {
			set[s] = struct{}{}
		}
	case []any:
		for _, v := range cur {
			if s, ok := v.(string); ok {
				set[s] = struct{}{}
			}
		}
	}
	for _, s := range add {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// compareFieldValues orders two field values for snapshot sorting. Missing
// values (nil) sort after present ones; mixed types fall back to their
// string form so ordering stays total.
func compareFieldValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return 1
		default:
			return -1
		}
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// deepCopyFields clones a field map so snapshots never alias store state.
func deepCopyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyFields(t)
	case []string:
		return append([]string(nil), t...)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = deepCopyValue(e)
		}
		return cp
	default:
		return v
	}
}

// fieldAt reads a dotted-path field, returning nil when absent.
func fieldAt(fields map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = fields
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}
