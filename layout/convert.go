package layout

import (
	"fmt"
	"sort"
	"time"

	"github.com/vgxbj/Kagami/vm"
)

// convert turns a decoded TOML value into a script value.
func convert(raw any) vm.Value {
	switch x := raw.(type) {
	case nil:
		return vm.Null()
	case string:
		return vm.String(x)
	case int64:
		return vm.Int(x)
	case int:
		return vm.Int(int64(x))
	case float64:
		return vm.Float(x)
	case bool:
		return vm.Bool(x)
	case time.Time:
		return vm.String(x.Format(time.RFC3339))
	case []any:
		elems := make([]vm.Value, len(x))
		for i, e := range x {
			elems[i] = convert(e)
		}
		return vm.ArrayOf(elems...)
	case []map[string]any:
		elems := make([]vm.Value, len(x))
		for i, e := range x {
			elems[i] = tableOf(e)
		}
		return vm.ArrayOf(elems...)
	case map[string]any:
		return tableOf(x)
	}
	return vm.String(fmt.Sprint(raw))
}

func tableOf(m map[string]any) vm.Value {
	t := vm.NewTable()
	for _, k := range sortedKeys(m) {
		t.SetString(k, convert(m[k]))
	}
	return vm.TableOf(t)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
