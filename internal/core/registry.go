package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]TableDefinition)
	registryMu sync.RWMutex
)

// Register adds a dataset definition to the registry.
// Panics if the key is taken or the definition is unusable: no table, no
// natural key, or a key column without a required field spec.
func Register(def TableDefinition) {
	if err := checkDefinition(def); err != nil {
		panic(fmt.Sprintf("register %s: %v", def.Info.Key, err))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("dataset already registered: %s", def.Info.Key))
	}

	if def.Info.SourceSystem == "" {
		def.Info.SourceSystem = "CSV - " + def.Info.Key
	}

	registry[def.Info.Key] = def
}

func checkDefinition(def TableDefinition) error {
	if def.Info.Key == "" || def.Info.Table == "" {
		return fmt.Errorf("key and table are required")
	}
	if len(def.Info.UniqueKey) == 0 {
		return fmt.Errorf("natural key is required")
	}
	for _, col := range def.Info.UniqueKey {
		spec, ok := def.Spec(col)
		if !ok || !spec.Required || spec.AllowEmpty {
			return fmt.Errorf("key column %q needs a required, non-empty field spec", col)
		}
	}
	for _, col := range []string{ColumnCreated, ColumnModified} {
		if _, ok := def.Spec(col); ok {
			return fmt.Errorf("column %q is maintained by the merge", col)
		}
	}
	return nil
}

// Get returns a dataset definition by key.
func Get(key string) (TableDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered definitions in daily refresh order
// (Order, then key).
func All() []TableDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Order != result[j].Info.Order {
			return result[i].Info.Order < result[j].Info.Order
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Keys returns registered dataset keys in daily refresh order.
func Keys() []string {
	defs := All()
	keys := make([]string, len(defs))
	for i, def := range defs {
		keys[i] = def.Info.Key
	}
	return keys
}

// TableCount returns the number of registered datasets.
func TableCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}
