// ABOUTME: Content digest and optional theme.toml manifest for uploaded packages
// ABOUTME: Digests use BLAKE3-256; manifests fill blank catalog metadata

package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"lukechampine.com/blake3"
)

// ManifestName is the optional metadata file at the root of a theme package.
const ManifestName = "theme.toml"

// Digest returns the hex BLAKE3-256 hash of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", filepath.Base(path), err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Manifest is the optional theme.toml a package may ship.
type Manifest struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Version     string   `toml:"version"`
	Category    string   `toml:"category"`
	Tags        []string `toml:"tags"`
}

// ReadManifest parses theme.toml from codeDir. It returns nil, nil when the file is absent.
func ReadManifest(codeDir string) (*Manifest, error) {
	var m Manifest
	_, err := toml.DecodeFile(filepath.Join(codeDir, ManifestName), &m)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestName, err)
	}
	return &m, nil
}
