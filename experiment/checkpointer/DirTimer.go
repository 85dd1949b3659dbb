package checkpointer

import (
	"fmt"
	"time"
)

// DirTimer returns a function which will append to a directory name
// the number of nanoseconds since January 1, 1970.
func DirTimer(dir string) func() string {
	return func() string {
		return fmt.Sprintf("%v-%v", dir, time.Now().UnixNano())
	}
}
