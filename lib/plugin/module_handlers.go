package plugin

import (
	"fmt"
	"maps"
)

// RegisterHandler registers a handler function for the given service name.
// The handler function processes raw byte payloads and returns raw byte responses.
func RegisterHandler(m *Module, name string, handler func(requestPayload []byte) (responsePayload []byte, isAppError bool)) {
	m.handlerLock.Lock()
	defer m.handlerLock.Unlock()

	if _, exists := m.handler[name]; exists {
		panic(fmt.Sprintf("handler for %s already registered", name))
	}

	m.handler[name] = wrapHandler(handler)
}

// RegisterOp registers handler as a numbered operation and returns its id.
// Ids are assigned in registration order starting at 0 and are advertised to
// the host through the built-in ops request.
func RegisterOp(m *Module, name string, handler func(requestPayload []byte) (responsePayload []byte, isAppError bool)) uint32 {
	m.handlerLock.Lock()
	defer m.handlerLock.Unlock()

	if _, exists := m.opNames[name]; exists {
		panic(fmt.Sprintf("op %s already registered", name))
	}

	id := uint32(len(m.ops))
	m.ops = append(m.ops, wrapHandler(handler))
	m.opNames[name] = id
	return id
}

// OpTable returns a copy of the registered operation table.
func (m *Module) OpTable() map[string]uint32 {
	m.handlerLock.RLock()
	defer m.handlerLock.RUnlock()
	return maps.Clone(m.opNames)
}

func wrapHandler(handler func([]byte) ([]byte, bool)) Handler {
	return func(requestPayload []byte) (AppHandlerResult, error) {
		responseBytes, isErr := handler(requestPayload)
		return AppHandlerResult{Payload: responseBytes, IsError: isErr}, nil
	}
}

func (m *Module) lookup(header Header) (Handler, error) {
	m.handlerLock.RLock()
	defer m.handlerLock.RUnlock()

	switch header.Name {
	case NameOps:
		return m.opsHandler, nil
	case NameDispatch:
		if int(header.Op) >= len(m.ops) {
			return nil, fmt.Errorf("no operation registered with id %d", header.Op)
		}
		return m.ops[header.Op], nil
	}

	h, ok := m.handler[header.Name]
	if !ok {
		return nil, fmt.Errorf("no handler registered for service: %s", header.Name)
	}
	return h, nil
}

func (m *Module) opsHandler(_ []byte) (AppHandlerResult, error) {
	payload, err := EncodeOpTable(m.OpTable())
	if err != nil {
		return AppHandlerResult{}, err
	}
	return AppHandlerResult{Payload: payload}, nil
}
