package ops

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/snipvault/internal/errors"
)

// ValidateFilename checks that name is a plain file name: non-empty, no
// directory components, no traversal, no control characters.
func ValidateFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.NewInvalidRequest("filename is required")
	}
	if containsTraversal(name) {
		return "", errors.NewInvalidRequest("filename must not contain directory traversal (..)")
	}
	if strings.ContainsAny(name, `/\`) {
		return "", errors.NewInvalidRequest("filename must not contain path separators")
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return "", errors.NewInvalidRequest("filename must not contain control characters")
		}
	}
	if name == "." {
		return "", errors.NewInvalidRequest("filename is required")
	}
	return name, nil
}

// isWithin reports whether path is root or lies beneath it.
func isWithin(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// isStrictlyWithin reports whether path lies beneath root and is not root itself.
func isStrictlyWithin(root, path string) bool {
	return isWithin(root, path) && filepath.Clean(root) != filepath.Clean(path)
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check for forward slashes on all platforms (e.g., user input)
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeForFilename sanitizes a string for safe use as a file or directory name.
// Removes/replaces characters that could be used for path traversal or injection.
func SanitizeForFilename(s string) string {
	// Replace path separators with dashes
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")

	// Replace ".." sequences (could be embedded)
	s = strings.ReplaceAll(s, "..", "-")

	// Remove null bytes and other control characters
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}

	s = strings.Trim(s, "-")
	s = strings.TrimSpace(s)

	if s == "" || s == "." {
		s = "unnamed"
	}

	return s
}

// writeFileAtomic streams r into path via a temp file in the same directory,
// so readers see either the previous file or the complete new one.
func writeFileAtomic(path string, r io.Reader, perm os.FileMode) (int64, error) {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return 0, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return 0, errors.NewInternal(fmt.Errorf("failed to create temp file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	n, err := io.Copy(file, r)
	if err != nil {
		return 0, errors.NewInternal(fmt.Errorf("failed to write file: %w", err))
	}
	if err := file.Sync(); err != nil {
		return 0, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return 0, errors.NewInternal(fmt.Errorf("failed to close file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return 0, errors.NewInvalidRequest("destination is a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		return 0, errors.NewInternal(fmt.Errorf("failed to finalize file: %w", err))
	}

	success = true
	return n, nil
}
