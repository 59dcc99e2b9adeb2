package quickpick

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// generateLockValue generates a unique lock value using crypto/rand
func generateLockValue() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to timestamp-based value if crypto/rand fails
		return fmt.Sprintf("lock_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// workerCount decides how many generation workers a batch of the given size
// gets. configured <= 0 means GOMAXPROCS. Small batches never fan out further
// than one worker per 1000 tickets.
func workerCount(configured, tickets int) int {
	n := configured
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if limit := tickets / 1000; n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ParseBalls reads ball numbers separated by commas or whitespace, e.g. "4 8,15 16,23 42"
func ParseBalls(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil, ErrInvalidParameters.WithDetails("no ball numbers in %q", s)
	}

	balls := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, ErrInvalidParameters.WithDetails("ball %q is not a number", f).WithCause(err)
		}
		balls[i] = v
	}
	return balls, nil
}
