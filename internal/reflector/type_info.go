// Package reflector derives stable, cached type names. The invocation
// registry uses them as default parameter signatures.
package reflector

import (
	"reflect"
	"sync"
)

var (
	muCache sync.RWMutex
	cache   = make(map[reflect.Type]TypeInfo)
)

type TypeInfo struct {
	// Name is "pkg/path.Type" for named types and the Go spelling
	// ("int", "[]string", "map[string]int") for everything else.
	Name string
	Type reflect.Type
}

func TypeInfoOf(x any) TypeInfo {
	return TypeInfoForType(reflect.TypeOf(x))
}

func TypeInfoFor[T any]() TypeInfo {
	return TypeInfoForType(reflect.TypeFor[T]())
}

// TypeInfoForType resolves t, looking through one level of pointer.
func TypeInfoForType(t reflect.Type) TypeInfo {
	if t == nil {
		return TypeInfo{}
	}

	muCache.RLock()
	ti, ok := cache[t]
	muCache.RUnlock()
	if ok {
		return ti
	}

	et := t
	if et.Kind() == reflect.Pointer {
		et = et.Elem()
	}
	name := et.String()
	if et.Name() != "" && et.PkgPath() != "" {
		name = et.PkgPath() + "." + et.Name()
	}
	ti = TypeInfo{Name: name, Type: et}

	muCache.Lock()
	cache[t] = ti
	muCache.Unlock()
	return ti
}
