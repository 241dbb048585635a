package utils

import (
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

var (
	ulidMutex   sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// CheckIfFilesExists returns an error for the first path that is missing or is a directory
func CheckIfFilesExists(files ...string) error {
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			return fmt.Errorf("file %q does not exist: %s", file, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%q is a directory", file)
		}
	}

	return nil
}

// SplitAndTrim splits s by sep, trims every part and drops empty ones
func SplitAndTrim(s, sep string) []string {
	var parts []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// Hostname returns the host name or "localhost" when it cannot be resolved
func Hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}

// ULID returns a new lexically sortable id
func ULID() string {
	ulidMutex.Lock()
	defer ulidMutex.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}
