package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ARENAHUB_TEST_MODE") == "" {
			_ = os.Setenv("ARENAHUB_TEST_MODE", "1")
		}
	})
}
