// swcstub is a process plugin that answers parse, print and
// extract_dependencies with canned results.
//
//	go build -o target/debug/deno_swc ./example/plugins/swcstub
//	DEV=1 SWC_KIND=process swc parse file.ts
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/snowmerak/swc.go/example/plugins/stubops"
	"github.com/snowmerak/swc.go/lib/plugin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := plugin.NewStd()

	handlers := stubops.Handlers()
	for _, name := range stubops.Names {
		plugin.RegisterOp(m, name, handlers[name])
	}

	if err := m.Listen(ctx); err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
