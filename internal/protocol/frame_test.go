package protocol

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		tag     byte
		payload []byte
	}{
		{"empty payload", TagSync, nil},
		{"small payload", TagTerminate, []byte{1, 2, 3}},
		{"larger payload", TagData, bytes.Repeat([]byte{0xAB}, 4096)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tc.tag, tc.payload))

			gotTag, gotPayload, err := ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.tag, gotTag)
			assert.Equal(t, tc.payload, gotPayload)
			assert.Equal(t, 0, buf.Len(), "frame reader should consume exactly one frame")
		})
	}
}

func TestReadFrameRejectsShortLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte('X')
	buf.Write([]byte{0, 0, 0, 1}) // length smaller than HeaderLengthBytes

	_, _, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TagData, []byte{1, 2, 3, 4}))
	truncated := buf.Bytes()[:len(buf.Bytes())-2]

	_, _, err := ReadFrame(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestPacketWriterReaderPrimitives(t *testing.T) {
	w := NewPacketWriter()
	w.WriteUint8(0x7F)
	w.WriteUint16(0x1234)
	w.WriteUint32(0xDEADBEEF)
	w.WriteUint64(0x0102030405060708)
	w.WriteLenString("hello")
	w.WriteLenBytes([]byte{9, 9, 9})
	id := mustParse("00000000-0000-0000-0000-000000000100")
	w.WriteUUID(id)
	w.WriteHeaders([]KV{{Key: 1, Value: []byte("a")}, {Key: 2, Value: []byte("bc")}})

	r := NewPacketReader(w.Bytes())

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x7F), u8)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	s, err := r.ReadLenString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	b, err := r.ReadLenBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9}, b)

	gotID, err := r.ReadUUID()
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	headers, err := r.ReadHeaders()
	require.NoError(t, err)
	require.Len(t, headers, 2)
	assert.Equal(t, KV{Key: 1, Value: []byte("a")}, headers[0])
	assert.Equal(t, KV{Key: 2, Value: []byte("bc")}, headers[1])

	assert.True(t, r.Done())
}

func TestPacketReaderShortInput(t *testing.T) {
	r := NewPacketReader([]byte{1, 2})
	_, err := r.ReadUint32()
	assert.ErrorIs(t, err, ErrShortBlob)
}

func FuzzReadFrame(f *testing.F) {
	var seed bytes.Buffer
	_ = WriteFrame(&seed, TagData, []byte("seed payload"))
	f.Add(seed.Bytes())
	f.Add([]byte{})
	f.Add([]byte{'E', 0, 0, 0, 4})

	f.Fuzz(func(t *testing.T, data []byte) {
		// ReadFrame must never panic on arbitrary input; any error is fine.
		tag, payload, err := ReadFrame(bytes.NewReader(data))
		if err != nil {
			return
		}
		// A successfully read frame must always re-encode through WriteFrame.
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, tag, payload))
	})
}
