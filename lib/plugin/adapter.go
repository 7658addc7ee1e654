package plugin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snowmerak/swc.go/lib/logging"
)

// Serializer converts typed requests and responses to and from wire bytes.
type Serializer[Req, Resp any] struct {
	MarshalRequest    func(Req) ([]byte, error)
	UnmarshalResponse func([]byte) (Resp, error)
}

// LoaderAdapter calls a loaded plugin with typed requests and responses.
type LoaderAdapter[Req, Resp any] struct {
	loader     *Loader
	serializer Serializer[Req, Resp]
}

func NewLoaderAdapter[Req, Resp any](loader *Loader, serializer Serializer[Req, Resp]) *LoaderAdapter[Req, Resp] {
	return &LoaderAdapter[Req, Resp]{
		loader:     loader,
		serializer: serializer,
	}
}

// Call invokes the named handler.
func (a *LoaderAdapter[Req, Resp]) Call(ctx context.Context, name string, request Req) (Resp, error) {
	return a.do(ctx, name, request, func(ctx context.Context, payload []byte) ([]byte, error) {
		return Call(ctx, a.loader, name, payload)
	})
}

// CallOp invokes the numbered operation op.
func (a *LoaderAdapter[Req, Resp]) CallOp(ctx context.Context, op uint32, request Req) (Resp, error) {
	return a.do(ctx, fmt.Sprintf("op %d", op), request, func(ctx context.Context, payload []byte) ([]byte, error) {
		return CallOp(ctx, a.loader, op, payload)
	})
}

func (a *LoaderAdapter[Req, Resp]) do(ctx context.Context, target string, request Req, send func(context.Context, []byte) ([]byte, error)) (Resp, error) {
	var zero Resp

	requestBytes, err := a.serializer.MarshalRequest(request)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal request for %s: %w", target, err)
	}

	responseBytes, err := send(ctx, requestBytes)
	if err != nil {
		return zero, err
	}

	resp, err := a.serializer.UnmarshalResponse(responseBytes)
	if err != nil {
		return zero, fmt.Errorf("failed to unmarshal response for %s: %w", target, err)
	}
	return resp, nil
}

// HandlerAdapter wraps a typed handler into the raw form accepted by
// RegisterHandler and RegisterOp.
type HandlerAdapter[Req, Resp any] struct {
	unmarshalReq func([]byte) (Req, error)
	marshalResp  func(Resp) ([]byte, error)
	typedHandler func(Req) (Resp, bool)
	serviceName  string
}

func NewHandlerAdapter[Req, Resp any](
	serviceName string,
	unmarshalReqFunc func([]byte) (Req, error),
	marshalRespFunc func(Resp) ([]byte, error),
	typedHandlerFunc func(Req) (Resp, bool),
) *HandlerAdapter[Req, Resp] {
	return &HandlerAdapter[Req, Resp]{
		unmarshalReq: unmarshalReqFunc,
		marshalResp:  marshalRespFunc,
		typedHandler: typedHandlerFunc,
		serviceName:  serviceName,
	}
}

// ToPluginHandler returns the raw handler. Decode and encode failures are
// reported to the caller as application errors.
func (ha *HandlerAdapter[Req, Resp]) ToPluginHandler() func(requestPayload []byte) (responsePayload []byte, isAppError bool) {
	log := logging.Named("plugin.adapter").With(zap.String("service", ha.serviceName))

	return func(requestPayload []byte) ([]byte, bool) {
		req, err := ha.unmarshalReq(requestPayload)
		if err != nil {
			log.Warn("failed to unmarshal request", zap.Error(err), zap.Int("size", len(requestPayload)))
			return []byte(fmt.Sprintf("%s: failed to unmarshal request: %v", ha.serviceName, err)), true
		}

		respObj, isAppErr := ha.typedHandler(req)

		payload, err := ha.marshalResp(respObj)
		if err != nil {
			log.Warn("failed to marshal response", zap.Error(err), zap.Bool("app_error", isAppErr))
			return []byte(fmt.Sprintf("%s: failed to marshal response: %v", ha.serviceName, err)), true
		}
		return payload, isAppErr
	}
}
