package sandbox

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/harun/toolshed/pkg/jsvalue"
)

// exportValue converts a JavaScript value into the jsvalue model, keeping
// object key order. Cycles become Opaque{Class: "Circular"}.
func exportValue(v goja.Value) any {
	return export(v, make(map[*goja.Object]bool))
}

func export(v goja.Value, stack map[*goja.Object]bool) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}

	switch x := v.(type) {
	case *goja.Symbol:
		return jsvalue.Opaque{Class: "Symbol", Repr: x.String()}
	case *goja.Object:
		return exportObject(x, stack)
	}

	switch x := v.Export().(type) {
	case string:
		return x
	case bool:
		return x
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return v.String()
}

func exportObject(obj *goja.Object, stack map[*goja.Object]bool) any {
	if stack[obj] {
		return jsvalue.Opaque{Class: "Circular", Repr: "[Circular]"}
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return jsvalue.Opaque{Class: "Function", Repr: obj.String()}
	}

	stack[obj] = true
	defer delete(stack, obj)

	if obj.ClassName() == "Array" {
		n := int(obj.Get("length").ToInteger())
		items := make([]any, n)
		for i := range n {
			items[i] = export(obj.Get(strconv.Itoa(i)), stack)
		}
		return items
	}

	out := jsvalue.NewObject()
	for _, key := range obj.Keys() {
		out.Set(key, export(obj.Get(key), stack))
	}
	return out
}

// toJS converts a Go argument into a JavaScript value. *jsvalue.Object keys
// keep their order.
func toJS(vm *goja.Runtime, v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case goja.Value:
		return x
	case *jsvalue.Object:
		obj := vm.NewObject()
		for _, f := range x.Fields() {
			_ = obj.Set(f.Key, toJS(vm, f.Value))
		}
		return obj
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = toJS(vm, item)
		}
		return vm.NewArray(items...)
	case jsvalue.Opaque:
		return goja.Undefined()
	}

	switch n := jsvalue.Normalize(v).(type) {
	case *jsvalue.Object, []any:
		return toJS(vm, n)
	default:
		return vm.ToValue(n)
	}
}
