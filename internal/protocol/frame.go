// Package protocol implements the binary wire protocol engine: message
// framing, the connection state machine, and request/response
// correlation described in the driver's protocol specification.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// HeaderLengthBytes is the size of the length prefix that follows every
// message's one-byte type tag.
const HeaderLengthBytes = 4

// ErrShortBlob is returned when a length-prefixed blob claims more bytes
// than remain in the buffer.
var ErrShortBlob = errors.New("protocol: truncated length-prefixed value")

// PacketWriter accumulates a single message's payload using the
// primitive encodings the wire format requires: fixed-width integers,
// length-prefixed UTF-8 strings and byte blobs, raw 16-byte UUIDs, and
// header maps (count followed by key/value pairs).
type PacketWriter struct {
	buf []byte
}

// NewPacketWriter returns an empty writer with cap reserved to avoid a
// first-append reallocation for typical small messages.
func NewPacketWriter() *PacketWriter {
	return &PacketWriter{buf: make([]byte, 0, 256)}
}

// Bytes returns the accumulated payload.
func (w *PacketWriter) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *PacketWriter) Len() int { return len(w.buf) }

func (w *PacketWriter) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *PacketWriter) WriteUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *PacketWriter) WriteUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *PacketWriter) WriteUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *PacketWriter) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }
func (w *PacketWriter) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }
func (w *PacketWriter) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteLenString writes a UTF-8 string prefixed by its 32-bit length.
func (w *PacketWriter) WriteLenString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteLenBytes writes a byte blob prefixed by its 32-bit length.
func (w *PacketWriter) WriteLenBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteBytes appends raw bytes with no length prefix (used for fields
// whose length is implied, e.g. a 16-byte UUID).
func (w *PacketWriter) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteUUID writes a UUID as 16 raw bytes.
func (w *PacketWriter) WriteUUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

// KV is a single header key/value pair.
type KV struct {
	Key   uint16
	Value []byte
}

// WriteHeaders writes a header count followed by each key (uint16) and
// length-prefixed value.
func (w *PacketWriter) WriteHeaders(headers []KV) {
	w.WriteUint16(uint16(len(headers)))
	for _, h := range headers {
		w.WriteUint16(h.Key)
		w.WriteLenBytes(h.Value)
	}
}

// PacketReader walks a single message's payload using the same
// primitive encodings as PacketWriter.
type PacketReader struct {
	buf []byte
	pos int
}

func NewPacketReader(b []byte) *PacketReader {
	return &PacketReader{buf: b}
}

// Remaining reports how many unread bytes remain.
func (r *PacketReader) Remaining() int { return len(r.buf) - r.pos }

// Done reports whether the whole payload has been consumed.
func (r *PacketReader) Done() bool { return r.pos >= len(r.buf) }

func (r *PacketReader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("%w: need %d, have %d", ErrShortBlob, n, r.Remaining())
	}
	return nil
}

func (r *PacketReader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *PacketReader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *PacketReader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *PacketReader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *PacketReader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *PacketReader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *PacketReader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadLenString reads a 32-bit-length-prefixed UTF-8 string.
func (r *PacketReader) ReadLenString() (string, error) {
	b, err := r.ReadLenBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadLenBytes reads a 32-bit-length-prefixed byte blob.
func (r *PacketReader) ReadLenBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// ReadBytes reads n raw bytes with no length prefix.
func (r *PacketReader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadUUID reads a UUID as 16 raw bytes.
func (r *PacketReader) ReadUUID() (uuid.UUID, error) {
	b, err := r.ReadBytes(16)
	if err != nil {
		return uuid.UUID{}, err
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

// ReadHeaders reads a header count followed by count (key, length-prefixed
// value) pairs.
func (r *PacketReader) ReadHeaders() ([]KV, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	headers := make([]KV, 0, n)
	for i := 0; i < int(n); i++ {
		key, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		val, err := r.ReadLenBytes()
		if err != nil {
			return nil, err
		}
		headers = append(headers, KV{Key: key, Value: val})
	}
	return headers, nil
}

// WriteFrame writes a complete message: a one-byte type tag, a 32-bit
// big-endian length covering everything after the tag (the length field
// itself plus the payload), then the payload.
func WriteFrame(w io.Writer, tag byte, payload []byte) error {
	var head [5]byte
	head[0] = tag
	binary.BigEndian.PutUint32(head[1:], uint32(HeaderLengthBytes+len(payload)))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one complete message: its type tag and payload. It
// never sees a "length" of zero, since the length prefix always covers
// itself.
func ReadFrame(r io.Reader) (tag byte, payload []byte, err error) {
	var head [5]byte
	if _, err = io.ReadFull(r, head[:]); err != nil {
		return 0, nil, err
	}
	tag = head[0]
	length := binary.BigEndian.Uint32(head[1:])
	if length < HeaderLengthBytes {
		return 0, nil, fmt.Errorf("protocol: invalid frame length %d", length)
	}
	payloadLen := length - HeaderLengthBytes
	if payloadLen == 0 {
		return tag, nil, nil
	}
	payload = make([]byte, payloadLen)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return tag, payload, nil
}
