package utils

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// FileHash returns the hex sha256 of a file on disk.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
