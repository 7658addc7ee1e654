package plugin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType represents the type of message being sent
type MessageType uint8

const (
	MessageTypeRequest  MessageType = 0x01 // Request message (expects response)
	MessageTypeResponse MessageType = 0x02 // Response message (response to request)
	MessageTypeNotify   MessageType = 0x03 // Notification message (no response expected)
	MessageTypeAck      MessageType = 0x04 // Acknowledgment message
	MessageTypeError    MessageType = 0x05 // Error message
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeRequest:
		return "Request"
	case MessageTypeResponse:
		return "Response"
	case MessageTypeNotify:
		return "Notify"
	case MessageTypeAck:
		return "Ack"
	case MessageTypeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Reserved message names of the protocol.
const (
	NameReady            = "ready"
	NameRequestReady     = "request_ready"
	NameRequestReadyAck  = "request_ready_ack"
	NameShutdown         = "shutdown"
	NameShutdownAck      = "shutdown_ack"
	NameForceShutdown    = "force_shutdown"
	NameForceShutdownAck = "force_shutdown_ack"
	NameOps              = "ops"
	NameDispatch         = "dispatch"
)

// Header represents the message header containing service name, error status,
// the target operation id for dispatch messages, and payload.
type Header struct {
	Name        string
	IsError     bool
	MessageType MessageType
	Op          uint32
	Payload     []byte
}

// MarshalBinary encodes the header into binary format.
func (h *Header) MarshalBinary() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.Grow(4 + len(h.Name) + 1 + 1 + 4 + 4 + len(h.Payload))

	nameBytes := []byte(h.Name)

	if err := binary.Write(&buffer, binary.BigEndian, uint32(len(nameBytes))); err != nil {
		return nil, fmt.Errorf("failed to write name length: %w", err)
	}
	if _, err := buffer.Write(nameBytes); err != nil {
		return nil, fmt.Errorf("failed to write name: %w", err)
	}

	var isErrorByte byte
	if h.IsError {
		isErrorByte = 1
	}
	if err := buffer.WriteByte(isErrorByte); err != nil {
		return nil, fmt.Errorf("failed to write IsError flag: %w", err)
	}
	if err := buffer.WriteByte(byte(h.MessageType)); err != nil {
		return nil, fmt.Errorf("failed to write message type: %w", err)
	}
	if err := binary.Write(&buffer, binary.BigEndian, h.Op); err != nil {
		return nil, fmt.Errorf("failed to write op: %w", err)
	}

	if err := binary.Write(&buffer, binary.BigEndian, uint32(len(h.Payload))); err != nil {
		return nil, fmt.Errorf("failed to write payload length: %w", err)
	}
	if _, err := buffer.Write(h.Payload); err != nil {
		return nil, fmt.Errorf("failed to write payload: %w", err)
	}

	return buffer.Bytes(), nil
}

// UnmarshalBinary decodes the header from binary format.
func (h *Header) UnmarshalBinary(data []byte) error {
	buffer := bytes.NewReader(data)

	var nameLen uint32
	if err := binary.Read(buffer, binary.BigEndian, &nameLen); err != nil {
		return fmt.Errorf("failed to read name length: %w", err)
	}
	if int64(nameLen) > int64(buffer.Len()) {
		return fmt.Errorf("name length %d exceeds remaining %d bytes", nameLen, buffer.Len())
	}

	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(buffer, nameBytes); err != nil {
		return fmt.Errorf("failed to read name: %w", err)
	}
	h.Name = string(nameBytes)

	isErrorByte, err := buffer.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read IsError flag: %w", err)
	}
	h.IsError = isErrorByte == 1

	messageTypeByte, err := buffer.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read message type: %w", err)
	}
	h.MessageType = MessageType(messageTypeByte)

	if err := binary.Read(buffer, binary.BigEndian, &h.Op); err != nil {
		return fmt.Errorf("failed to read op: %w", err)
	}

	var payloadLen uint32
	if err := binary.Read(buffer, binary.BigEndian, &payloadLen); err != nil {
		return fmt.Errorf("failed to read payload length: %w", err)
	}
	if int64(payloadLen) > int64(buffer.Len()) {
		return fmt.Errorf("payload length %d exceeds remaining %d bytes", payloadLen, buffer.Len())
	}

	h.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(buffer, h.Payload); err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	return nil
}
