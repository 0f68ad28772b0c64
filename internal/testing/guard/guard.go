package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("GATEKEEP_TEST_MODE") == "" {
			_ = os.Setenv("GATEKEEP_TEST_MODE", "1")
		}
	})
}
