package native

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/snowmerak/swc.go/lib/logging"
	"github.com/snowmerak/swc.go/lib/plugin"
)

type processPlugin struct {
	loader *plugin.Loader
	ops    OpTable
}

func openProcess(ctx context.Context, path string, opts Options) (Plugin, error) {
	loaderOpts := plugin.DefaultLoaderOptions()
	loaderOpts.Provider = &plugin.StdioProvider{
		Args:   opts.Args,
		Env:    opts.Env,
		Stderr: os.Stderr,
	}
	loaderOpts.MaxMessageSize = opts.MaxMessageSize

	loader := plugin.NewLoaderWithOptions(path, filepath.Base(path), "", loaderOpts)
	if err := loader.Load(ctx); err != nil {
		loader.Close()
		return nil, fmt.Errorf("load process plugin %s: %w", path, err)
	}

	p, err := newProcessPlugin(ctx, loader)
	if err != nil {
		loader.Close()
		return nil, err
	}
	return p, nil
}

// newProcessPlugin wraps an already loaded Loader and fetches its op table.
func newProcessPlugin(ctx context.Context, loader *plugin.Loader) (*processPlugin, error) {
	adapter := plugin.NewProtobufLoaderAdapter[*emptypb.Empty, *structpb.Struct](loader, func() *structpb.Struct {
		return new(structpb.Struct)
	})

	table, err := adapter.Call(ctx, plugin.NameOps, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("fetch op table: %w", err)
	}

	raw, err := plugin.OpTableFromStruct(table)
	if err != nil {
		return nil, fmt.Errorf("fetch op table: %w", err)
	}

	ops := make(OpTable, len(raw))
	for name, id := range raw {
		ops[name] = OpID(id)
	}

	logging.Named("native").Debug("process plugin opened", zap.String("path", loader.Path), zap.Int("ops", len(ops)))
	return &processPlugin{loader: loader, ops: ops}, nil
}

func (p *processPlugin) Ops() OpTable {
	return p.ops
}

func (p *processPlugin) Dispatch(ctx context.Context, op OpID, req []byte) ([]byte, error) {
	resp, err := plugin.CallOp(ctx, p.loader, uint32(op), req)
	if err != nil {
		var remote *plugin.RemoteError
		if errors.As(err, &remote) {
			return nil, &PluginError{Op: op, Message: remote.Message}
		}
		return nil, err
	}
	return resp, nil
}

// Close asks the plugin to finish in-flight calls before it exits.
func (p *processPlugin) Close() error {
	return p.loader.Close()
}

// Abort tells the plugin to exit immediately.
func (p *processPlugin) Abort() error {
	return p.loader.ForceClose()
}
