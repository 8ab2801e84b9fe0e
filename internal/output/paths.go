package output

import (
	"fmt"
	"os"
)

// NextAvailablePath returns path if nothing exists there, otherwise the first
// free "path.N" (N >= 1), so previous results are never overwritten.
func NextAvailablePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
