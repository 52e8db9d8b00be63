package config

import (
	"reflect"
	"testing"
)

func TestMergeOverrideWins(t *testing.T) {
	base := map[string]any{"port": 3000, "host": "127.0.0.1"}
	override := map[string]any{"port": 8080}

	got := Merge(base, override)
	want := map[string]any{"port": 8080, "host": "127.0.0.1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMergeNestedMapsDeepMerge(t *testing.T) {
	base := map[string]any{
		"dev": map[string]any{"port": 3000, "debounce_ms": 500},
	}
	override := map[string]any{
		"dev": map[string]any{"port": 8080},
	}

	got := Merge(base, override)
	want := map[string]any{
		"dev": map[string]any{"port": 8080, "debounce_ms": 500},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMergeNonMapOverrideReplaces(t *testing.T) {
	base := map[string]any{
		"targets": map[string]any{"a": 1},
	}
	override := map[string]any{
		"targets": []any{"a", "b"},
	}

	got := Merge(base, override)
	if !reflect.DeepEqual(got["targets"], []any{"a", "b"}) {
		t.Fatalf("targets = %v, want replacement slice", got["targets"])
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"nested": map[string]any{"keep": true}}
	override := map[string]any{"nested": map[string]any{"add": 1}}

	Merge(base, override)

	if _, ok := base["nested"].(map[string]any)["add"]; ok {
		t.Fatal("Merge mutated the base map")
	}
	if _, ok := override["nested"].(map[string]any)["keep"]; ok {
		t.Fatal("Merge mutated the override map")
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	if got := Merge(nil, nil); len(got) != 0 {
		t.Fatalf("Merge(nil, nil) = %v, want empty", got)
	}
	if got := Merge(map[string]any{"a": 1}, nil); got["a"] != 1 {
		t.Fatalf("Merge with nil override = %v", got)
	}
}
