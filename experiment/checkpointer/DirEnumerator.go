package checkpointer

import "fmt"

// dirEnumerator enumerates directory names
type dirEnumerator struct {
	i    int
	name string
}

// dir returns the name of the next consecutive enumerated directory
func (d *dirEnumerator) dir() string {
	d.i++
	return fmt.Sprintf("%v%v", d.name, d.i)
}

// DirEnumerator returns a function which will return directory names
// with a counter integer suffix. Each time the returned function is
// called, the counter suffix will be one higher than on the previous
// call. The dir parameter is the full directory name with its path.
func DirEnumerator(start int, dir string) func() string {
	enum := dirEnumerator{i: start, name: dir}

	return enum.dir
}
