//go:build !(linux || darwin || freebsd)

package native

import "fmt"

func openShared(path string) (Plugin, error) {
	return nil, fmt.Errorf("load %s: %w", path, ErrUnsupported)
}
