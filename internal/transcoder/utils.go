package transcoder

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// generateRandomString generates a random string of specified length
func generateRandomString(length int) string {
	bytes := make([]byte, length/2+1)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:length]
}

// removeFile removes a file, ignoring errors
func removeFile(path string) {
	os.Remove(path)
}

// fileExists reports whether path names an existing file
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// partialPath returns a hidden sibling of path that keeps its extension so
// ffmpeg can still infer the container
func partialPath(path string) string {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	return filepath.Join(dir, "."+stem+".partial-"+generateRandomString(8)+ext)
}
