package hybrid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath is the program run when no file is named.
const DefaultPath = "malbolge.apop"

// ErrExtension is returned for files that are not hybrid programs.
var ErrExtension = errors.New("hybrid: program files must end in .apop or .apo")

// HasExtension reports whether path names a hybrid program file.
func HasExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".apop", ".apo":
		return true
	}
	return false
}

// LoadFile reads a hybrid program byte for byte.
func LoadFile(path string) (string, error) {
	if !HasExtension(path) {
		return "", fmt.Errorf("%w: %s", ErrExtension, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hybrid: reading program: %w", err)
	}
	return string(data), nil
}
