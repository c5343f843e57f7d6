// Package fabric implements the node-to-node message-passing transport: a
// length-prefixed binary framing over TCP, the tagged Message envelope
// carried between host, worker controllers, and agents, and the
// broadcast/gather helpers the host controller drives its cluster with.
package fabric

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/arxgeo/geodist/internal/dberr"
)

// Tag identifies the payload carried by a Message, the dispatch key every
// controller's event loop switches on.
type Tag byte

const (
	TagBroadcastConfig Tag = iota
	TagLoadDataset
	TagUnloadDataset
	TagAssignPartitions
	TagQuery
	TagQueryResult
	TagDistanceJoinLocalResult
	TagDistanceJoinBatch
	TagAck
	TagNack
	TagShutdown
	TagHeartbeat
)

func (t Tag) String() string {
	switch t {
	case TagBroadcastConfig:
		return "BroadcastConfig"
	case TagLoadDataset:
		return "LoadDataset"
	case TagUnloadDataset:
		return "UnloadDataset"
	case TagAssignPartitions:
		return "AssignPartitions"
	case TagQuery:
		return "Query"
	case TagQueryResult:
		return "QueryResult"
	case TagDistanceJoinLocalResult:
		return "DistanceJoinLocalResult"
	case TagDistanceJoinBatch:
		return "DistanceJoinBatch"
	case TagAck:
		return "Ack"
	case TagNack:
		return "Nack"
	case TagShutdown:
		return "Shutdown"
	case TagHeartbeat:
		return "Heartbeat"
	default:
		return "Unknown"
	}
}

// Message is the envelope every fabric connection exchanges: a tag byte,
// the originating node's rank (0 for the host), and an opaque payload
// whose shape is determined entirely by Tag.
type Message struct {
	Tag     Tag
	From    int32
	Payload []byte
}

// maxFrameSize bounds a single frame's payload, guarding against a
// corrupt length prefix turning into an out-of-memory allocation.
const maxFrameSize = 512 << 20

// WriteMessage frames m as [4-byte length][1 tag][4-byte from][payload]
// and writes it to w. The length covers everything after itself.
func WriteMessage(w io.Writer, m Message) error {
	body := make([]byte, 0, 5+len(m.Payload))
	body = append(body, byte(m.Tag))
	var fromBuf [4]byte
	binary.LittleEndian.PutUint32(fromBuf[:], uint32(m.From))
	body = append(body, fromBuf[:]...)
	body = append(body, m.Payload...)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return dberr.Wrap(dberr.CodeCommunication, "write frame length", err)
	}
	if _, err := w.Write(body); err != nil {
		return dberr.Wrap(dberr.CodeCommunication, "write frame body", err)
	}
	return nil
}

// ReadMessage blocks until a full frame arrives on r and decodes it.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err // EOF/closed connection surfaces unwrapped so callers can detect it
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n < 5 || n > maxFrameSize {
		return Message{}, dberr.New(dberr.CodeCommunication, "frame length out of range")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, dberr.Wrap(dberr.CodeCommunication, "read frame body", err)
	}
	return Message{
		Tag:     Tag(body[0]),
		From:    int32(binary.LittleEndian.Uint32(body[1:5])),
		Payload: body[5:],
	}, nil
}

// AckPayload/NackPayload are the minimal acknowledgement bodies a
// controller sends back for commands with no richer response.
type AckPayload struct {
	CommandID string
}

type NackPayload struct {
	CommandID string
	Err       string
}

func EncodeAck(p AckPayload) []byte  { return encodeStrings(p.CommandID) }
func EncodeNack(p NackPayload) []byte { return encodeStrings(p.CommandID, p.Err) }

func DecodeAck(data []byte) (AckPayload, error) {
	s, err := decodeStrings(data, 1)
	if err != nil {
		return AckPayload{}, err
	}
	return AckPayload{CommandID: s[0]}, nil
}

func DecodeNack(data []byte) (NackPayload, error) {
	s, err := decodeStrings(data, 2)
	if err != nil {
		return NackPayload{}, err
	}
	return NackPayload{CommandID: s[0], Err: s[1]}, nil
}

func encodeStrings(ss ...string) []byte {
	var buf bytes.Buffer
	for _, s := range ss {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
		buf.Write(n[:])
		buf.WriteString(s)
	}
	return buf.Bytes()
}

func decodeStrings(data []byte, count int) ([]string, error) {
	r := bytes.NewReader(data)
	out := make([]string, count)
	for i := 0; i < count; i++ {
		var n [4]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return nil, dberr.Wrap(dberr.CodeSerialization, "truncated string field", err)
		}
		buf := make([]byte, binary.LittleEndian.Uint32(n[:]))
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, dberr.Wrap(dberr.CodeSerialization, "truncated string field", err)
		}
		out[i] = string(buf)
	}
	return out, nil
}
