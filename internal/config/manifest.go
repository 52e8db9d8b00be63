package config

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// AppManifest holds the fields devws reads from a JSON package manifest.
type AppManifest struct {
	// Name is the application name.
	Name string

	// Entry is the application entry point (the manifest's "main" field).
	Entry string
}

// LoadAppManifest extracts the application name and entry point from a
// JSON package manifest.
//
// Parameters:
//   - path: Path to the manifest file
//
// Returns:
//   - *AppManifest: The extracted fields
//   - error: Any error that occurred
func LoadAppManifest(path string) (*AppManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("manifest %s is not valid JSON", path)
	}

	return &AppManifest{
		Name:  gjson.GetBytes(data, "name").String(),
		Entry: gjson.GetBytes(data, "main").String(),
	}, nil
}

// RenderDevManifest returns a copy of the manifest with the live serve URL
// injected under "dev.serverUrl".
//
// An empty serveURL is written as-is: the consumer application treats an
// absent or empty URL as "load from the pre-built static artifact".
//
// Parameters:
//   - manifest: The original manifest bytes
//   - serveURL: The fully-resolved URL of the served target, or ""
//
// Returns:
//   - []byte: The rewritten manifest
//   - error: Any error that occurred
func RenderDevManifest(manifest []byte, serveURL string) ([]byte, error) {
	out, err := sjson.SetBytes(manifest, "dev.serverUrl", serveURL)
	if err != nil {
		return nil, fmt.Errorf("failed to render dev manifest: %w", err)
	}
	return out, nil
}
