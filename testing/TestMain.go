// Package testing puts the binaries into test mode for packages that import it.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("COOP_TEST_MODE", "1")
		if os.Getenv("CORE_MYSQL_DSN") == "" {
			_ = os.Setenv("CORE_MYSQL_DSN", "coop:coop@tcp(127.0.0.1:0)/core?parseTime=true")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs m in test mode.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
