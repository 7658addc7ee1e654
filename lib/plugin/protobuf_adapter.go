package plugin

import (
	"google.golang.org/protobuf/proto"
)

// NewProtobufLoaderAdapter creates a LoaderAdapter for protobuf messages.
// newRespInstance must return a fresh, non-nil response message.
func NewProtobufLoaderAdapter[Req proto.Message, Resp proto.Message](
	loader *Loader,
	newRespInstance func() Resp,
) *LoaderAdapter[Req, Resp] {
	return NewLoaderAdapter(loader, Serializer[Req, Resp]{
		MarshalRequest: func(req Req) ([]byte, error) {
			return proto.Marshal(req)
		},
		UnmarshalResponse: func(data []byte) (Resp, error) {
			instance := newRespInstance()
			if err := proto.Unmarshal(data, instance); err != nil {
				var zero Resp
				return zero, err
			}
			return instance, nil
		},
	})
}
