package fabric

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := Message{Tag: TagQuery, From: 2, Payload: []byte("hello")}
	require.NoError(t, WriteMessage(&buf, msg))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestMessageRoundTripEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	msg := Message{Tag: TagHeartbeat, From: -1}
	require.NoError(t, WriteMessage(&buf, msg))
	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg.Tag, got.Tag)
	assert.Equal(t, msg.From, got.From)
	assert.Empty(t, got.Payload)
}

func TestAckNackRoundTrip(t *testing.T) {
	ack := AckPayload{CommandID: "cmd-1"}
	got, err := DecodeAck(EncodeAck(ack))
	require.NoError(t, err)
	assert.Equal(t, ack, got)

	nack := NackPayload{CommandID: "cmd-2", Err: "partition out of range"}
	gotN, err := DecodeNack(EncodeNack(nack))
	require.NoError(t, err)
	assert.Equal(t, nack, gotN)
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	lenBuf[0], lenBuf[1], lenBuf[2], lenBuf[3] = 0xff, 0xff, 0xff, 0xff
	buf.Write(lenBuf[:])
	_, err := ReadMessage(&buf)
	assert.Error(t, err)
}
