// swcshared is the shared object form of the stub plugin.
//
//	go build -buildmode=plugin -o target/debug/libdeno_swc.so ./example/plugins/swcshared
//	DEV=1 swc parse file.ts
package main

import "github.com/snowmerak/swc.go/example/plugins/stubops"

// Ops returns the operation table.
func Ops() map[string]uint32 {
	table := make(map[string]uint32, len(stubops.Names))
	for i, name := range stubops.Names {
		table[name] = uint32(i)
	}
	return table
}

// Dispatch runs operation op on req.
func Dispatch(op uint32, req []byte) []byte {
	return stubops.Dispatch(op, req)
}

func main() {}
