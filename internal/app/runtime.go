package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv disables runtime side effects in the mains when truthy.
const TestModeEnv = "COOP_TEST_MODE"

var testMode = struct {
	sync.RWMutex
	loaded bool
	on     bool
}{}

func readTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}

// InTestMode reports whether the binaries should skip connecting to their backends.
func InTestMode() bool {
	testMode.RLock()
	if testMode.loaded {
		defer testMode.RUnlock()
		return testMode.on
	}
	testMode.RUnlock()
	RefreshTestMode()
	return InTestMode()
}

// RefreshTestMode re-reads the flag after environment changes.
func RefreshTestMode() {
	on := readTestMode()
	testMode.Lock()
	testMode.loaded, testMode.on = true, on
	testMode.Unlock()
}
