package plugin

import (
	"encoding/json"
)

// NewJSONLoaderAdapter creates a LoaderAdapter that speaks JSON.
func NewJSONLoaderAdapter[Req, Resp any](loader *Loader) *LoaderAdapter[Req, Resp] {
	return NewLoaderAdapter(loader, Serializer[Req, Resp]{
		MarshalRequest: func(req Req) ([]byte, error) {
			return json.Marshal(req)
		},
		UnmarshalResponse: func(data []byte) (Resp, error) {
			var resp Resp
			err := json.Unmarshal(data, &resp)
			return resp, err
		},
	})
}

// NewJSONHandlerAdapter creates a HandlerAdapter that speaks JSON.
func NewJSONHandlerAdapter[Req, Resp any](serviceName string, handler func(Req) (Resp, bool)) *HandlerAdapter[Req, Resp] {
	return NewHandlerAdapter(
		serviceName,
		func(data []byte) (Req, error) {
			var req Req
			err := json.Unmarshal(data, &req)
			return req, err
		},
		func(resp Resp) ([]byte, error) {
			return json.Marshal(resp)
		},
		handler,
	)
}
