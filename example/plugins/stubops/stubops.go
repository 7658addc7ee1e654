// Package stubops holds the canned operations served by the example
// plugins. They check that requests are JSON objects and answer with fixed
// results, which is enough to exercise the loaders end to end without a
// compiler.
package stubops

import (
	"encoding/json"

	"github.com/snowmerak/swc.go/lib/plugin"
)

// Handler answers one request. isError marks resp as an error message.
type Handler func(req []byte) (resp []byte, isError bool)

// Names lists the operations in id order.
var Names = []string{"parse", "print", "extract_dependencies"}

// Handlers returns the handler for each name in Names.
func Handlers() map[string]Handler {
	return map[string]Handler{
		"parse":                canned("parse", `{"type":"Module","body":[]}`),
		"print":                canned("print", `{"code":""}`),
		"extract_dependencies": canned("extract_dependencies", `[]`),
	}
}

// Dispatch runs the operation with the given id. Unknown ids produce no
// response.
func Dispatch(op uint32, req []byte) []byte {
	if int(op) >= len(Names) {
		return nil
	}
	resp, isError := Handlers()[Names[op]](req)
	if isError {
		msg, _ := json.Marshal(map[string]string{"error": string(resp)})
		return msg
	}
	return resp
}

func canned(name, result string) Handler {
	return plugin.NewJSONHandlerAdapter(name, func(map[string]json.RawMessage) (json.RawMessage, bool) {
		return json.RawMessage(result), false
	}).ToPluginHandler()
}
