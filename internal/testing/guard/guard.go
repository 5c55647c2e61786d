// Package guard forces test mode before any runtime code runs. Import it
// blank from tests that touch the binaries' startup paths.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PHARMATRADE_TEST_MODE") == "" {
			_ = os.Setenv("PHARMATRADE_TEST_MODE", "1")
		}
	})
}
