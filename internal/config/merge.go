package config

// Merge combines a base configuration map with a user-supplied override.
//
// Semantics: override wins on conflict; when both sides hold a nested map
// the maps are merged recursively; any other override value (including
// slices and scalars) replaces the base value wholesale.
//
// Neither input map is mutated; the result is a fresh map.
//
// Parameters:
//   - base: The defaults to start from
//   - override: The user-supplied values
//
// Returns:
//   - map[string]any: The merged configuration
func Merge(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range override {
		baseMap, baseOK := merged[key].(map[string]any)
		overrideMap, overrideOK := value.(map[string]any)
		if baseOK && overrideOK {
			merged[key] = Merge(baseMap, overrideMap)
			continue
		}
		merged[key] = value
	}
	return merged
}
