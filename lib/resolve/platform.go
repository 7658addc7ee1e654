package resolve

import (
	"errors"
	"fmt"

	"github.com/snowmerak/swc.go/lib/native"
)

// BaseName is the plugin's file name without platform decoration.
const BaseName = "deno_swc"

// ErrUnsupportedPlatform is returned for an operating system with no
// published plugin binary.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Decoration is the prefix and suffix wrapped around BaseName on one platform.
type Decoration struct {
	Prefix string
	Suffix string
}

var sharedDecorations = map[string]Decoration{
	"darwin":  {Prefix: "lib", Suffix: ".dylib"},
	"linux":   {Prefix: "lib", Suffix: ".so"},
	"windows": {Prefix: "", Suffix: ".dll"},
}

// DecorationFor returns the file name decoration for goos and kind. An empty
// kind means shared.
func DecorationFor(goos string, kind native.Kind) (Decoration, error) {
	switch kind {
	case "", native.KindShared:
		d, ok := sharedDecorations[goos]
		if !ok {
			return Decoration{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
		}
		return d, nil
	case native.KindProcess:
		if _, ok := sharedDecorations[goos]; !ok {
			return Decoration{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
		}
		if goos == "windows" {
			return Decoration{Suffix: ".exe"}, nil
		}
		return Decoration{}, nil
	case native.KindWasm:
		return Decoration{Suffix: ".wasm"}, nil
	default:
		return Decoration{}, fmt.Errorf("unknown plugin kind %q", kind)
	}
}

// Filename returns the plugin binary name for goos and kind, e.g.
// libdeno_swc.so on linux.
func Filename(goos string, kind native.Kind) (string, error) {
	d, err := DecorationFor(goos, kind)
	if err != nil {
		return "", err
	}
	return d.Prefix + BaseName + d.Suffix, nil
}
