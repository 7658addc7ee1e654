package multiplexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Node frames sequence-numbered messages over a single reader/writer pair.
// Writes are serialized; a message is split into Start, Data* and End frames.
type Node struct {
	reader io.Reader
	writer io.Writer

	writerLock sync.Mutex
	readerLock sync.RWMutex

	readBuffer map[uint32]*Message

	maxMessageSize int
	sequence       atomic.Uint32
}

func NewNode(reader io.Reader, writer io.Writer) *Node {
	return NewNodeWithLimit(reader, writer, DefaultMaxMessageSize)
}

// NewNodeWithLimit creates a node that rejects incoming messages larger than maxMessageSize.
func NewNodeWithLimit(reader io.Reader, writer io.Writer, maxMessageSize int) *Node {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Node{
		reader:         reader,
		writer:         writer,
		readBuffer:     make(map[uint32]*Message),
		maxMessageSize: maxMessageSize,
	}
}

const (
	// 1 byte message type, 4 bytes frame sequence, 4 bytes data length
	MessageHeaderSize         = 9
	MessageHeaderTypeStart    = uint8(0x01)
	MessageHeaderTypeEnd      = uint8(0x02)
	MessageHeaderTypeData     = uint8(0x03)
	MessageHeaderTypeError    = uint8(0x04)
	MessageHeaderTypeComplete = uint8(0x05)
	MessageHeaderTypeAbort    = uint8(0x06)
)

const (
	MessageChunkSize      = 1024
	DefaultMaxMessageSize = 1024 * 1024 * 10
)

type Message struct {
	ID   uint32
	Data []byte
	Type uint8
}

// ReadMessage starts the read loop and returns a channel of complete, aborted
// and error messages. The channel is closed when the stream ends, a read fails
// or ctx is done.
func (n *Node) ReadMessage(ctx context.Context) (<-chan *Message, error) {
	if n.reader == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	const defaultMaxBufferLength = 4096
	ch := make(chan *Message, defaultMaxBufferLength)

	emit := func(m *Message) bool {
		select {
		case ch <- m:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)

		header := make([]byte, MessageHeaderSize)
		buffer := make([]byte, MessageChunkSize)

		for {
			if ctx.Err() != nil {
				return
			}

			if _, err := io.ReadFull(n.reader, header); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
					emit(&Message{Type: MessageHeaderTypeError, Data: []byte(err.Error())})
				}
				return
			}

			msgType := header[0]
			frameID := uint32(header[1])<<24 | uint32(header[2])<<16 | uint32(header[3])<<8 | uint32(header[4])
			dataLength := uint32(header[5])<<24 | uint32(header[6])<<16 | uint32(header[7])<<8 | uint32(header[8])

			if int64(dataLength) > int64(n.maxMessageSize) {
				emit(&Message{Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("data length %d exceeds maximum %d", dataLength, n.maxMessageSize))})
				return
			}

			switch msgType {
			case MessageHeaderTypeStart:
				n.readerLock.Lock()
				_, exists := n.readBuffer[frameID]
				if !exists {
					n.readBuffer[frameID] = &Message{
						ID:   frameID,
						Type: MessageHeaderTypeStart,
						Data: make([]byte, 0, min(int(dataLength), MessageChunkSize*64)),
					}
				}
				n.readerLock.Unlock()

				if exists {
					if !emit(&Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("frame ID %d already exists", frameID))}) {
						return
					}
				}

			case MessageHeaderTypeData:
				if int(dataLength) > len(buffer) {
					buffer = make([]byte, dataLength)
				}
				if dataLength > 0 {
					if _, err := io.ReadFull(n.reader, buffer[:dataLength]); err != nil {
						if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
							emit(&Message{Type: MessageHeaderTypeError, Data: []byte(err.Error())})
						}
						return
					}
				}

				n.readerLock.Lock()
				m, ok := n.readBuffer[frameID]
				overflow := ok && len(m.Data)+int(dataLength) > n.maxMessageSize
				if overflow {
					delete(n.readBuffer, frameID)
				} else if ok {
					m.Data = append(m.Data, buffer[:dataLength]...)
				}
				n.readerLock.Unlock()

				if !ok {
					if !emit(&Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("unknown frame ID: %d", frameID))}) {
						return
					}
				} else if overflow {
					if !emit(&Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("message size would exceed maximum: %d", n.maxMessageSize))}) {
						return
					}
				}

			case MessageHeaderTypeEnd, MessageHeaderTypeAbort:
				n.readerLock.Lock()
				m, ok := n.readBuffer[frameID]
				if ok {
					delete(n.readBuffer, frameID)
				}
				n.readerLock.Unlock()

				if !ok {
					if !emit(&Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("unknown frame ID: %d", frameID))}) {
						return
					}
					continue
				}

				if msgType == MessageHeaderTypeEnd {
					m.Type = MessageHeaderTypeComplete
				} else {
					m.Type = MessageHeaderTypeAbort
				}
				if !emit(m) {
					return
				}

			default:
				emit(&Message{Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("unknown message type: %d", msgType))})
				return
			}
		}
	}()

	return ch, nil
}

func (n *Node) write(mesgType uint8, frameID uint32, data []byte) error {
	if n.writer == nil {
		return fmt.Errorf("writer is nil")
	}

	if uint64(len(data)) > 0xFFFFFFFF {
		return fmt.Errorf("data length exceeds maximum size")
	}

	frame := make([]byte, MessageHeaderSize, MessageHeaderSize+len(data))
	frame[0] = mesgType
	frame[1] = byte(frameID >> 24)
	frame[2] = byte(frameID >> 16)
	frame[3] = byte(frameID >> 8)
	frame[4] = byte(frameID)
	frame[5] = byte(len(data) >> 24)
	frame[6] = byte(len(data) >> 16)
	frame[7] = byte(len(data) >> 8)
	frame[8] = byte(len(data))
	frame = append(frame, data...)

	if _, err := n.writer.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// WriteMessageWithSequence writes data as one framed message under seq.
// If ctx is cancelled mid-message an Abort frame is written instead of End.
func (n *Node) WriteMessageWithSequence(ctx context.Context, seq uint32, data []byte) error {
	if len(data) > n.maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds maximum %d", len(data), n.maxMessageSize)
	}

	// Frames of one message must not interleave with another writer's frames.
	n.writerLock.Lock()
	defer n.writerLock.Unlock()

	abort := func() error {
		if err := n.write(MessageHeaderTypeAbort, seq, nil); err != nil {
			return fmt.Errorf("failed to write abort message: %w", err)
		}
		return ctx.Err()
	}

	if err := n.write(MessageHeaderTypeStart, seq, nil); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	for len(data) > 0 {
		if ctx.Err() != nil {
			return abort()
		}

		chunkSize := min(len(data), MessageChunkSize)
		if err := n.write(MessageHeaderTypeData, seq, data[:chunkSize]); err != nil {
			return fmt.Errorf("failed to write data chunk: %w", err)
		}
		data = data[chunkSize:]
	}

	if ctx.Err() != nil {
		return abort()
	}

	if err := n.write(MessageHeaderTypeEnd, seq, nil); err != nil {
		return fmt.Errorf("failed to write end message: %w", err)
	}

	return nil
}

// WriteMessage sends a message with automatic sequence numbering
func (n *Node) WriteMessage(ctx context.Context, data []byte) error {
	seq := n.sequence.Add(1)
	return n.WriteMessageWithSequence(ctx, seq, data)
}

// Close drops partially received messages.
func (n *Node) Close() error {
	n.readerLock.Lock()
	defer n.readerLock.Unlock()

	clear(n.readBuffer)
	return nil
}

// GetPendingMessageCount returns the number of pending incomplete messages
func (n *Node) GetPendingMessageCount() int {
	n.readerLock.RLock()
	defer n.readerLock.RUnlock()
	return len(n.readBuffer)
}
