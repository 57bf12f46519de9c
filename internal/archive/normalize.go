// ABOUTME: Flattens a single top-level wrapper directory left by extraction
// ABOUTME: Guarantees theme files such as index.html sit directly in the code dir

package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Normalize moves the children of a lone wrapper directory up into dir and removes
// the wrapper. It does nothing when dir holds zero entries, several entries, or a
// single regular file.
func Normalize(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading extracted dir: %w", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}

	// Rename the wrapper first so a child with the wrapper's own name can move up
	wrapper := filepath.Join(dir, ".wrapper-"+uuid.NewString())
	if err := os.Rename(filepath.Join(dir, entries[0].Name()), wrapper); err != nil {
		return fmt.Errorf("renaming wrapper %s: %w", entries[0].Name(), err)
	}

	children, err := os.ReadDir(wrapper)
	if err != nil {
		return fmt.Errorf("reading wrapper: %w", err)
	}
	for _, child := range children {
		if err := os.Rename(filepath.Join(wrapper, child.Name()), filepath.Join(dir, child.Name())); err != nil {
			return fmt.Errorf("moving %s out of wrapper: %w", child.Name(), err)
		}
	}

	if err := os.Remove(wrapper); err != nil {
		return fmt.Errorf("removing wrapper: %w", err)
	}
	return nil
}
