package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Wire sizes for the framed field protocol.
const (
	FullLengthSize  = 8 // total-length prefix, big-endian
	FieldLengthSize = 4 // per-field length prefix, big-endian
	IntFieldSize    = 8 // INT values are 64-bit two's complement
)

// FieldType tags the encoding of a field value.
type FieldType byte

const (
	FieldInt  FieldType = 0
	FieldRaw  FieldType = 1
	FieldText FieldType = 2
)

// fieldTypeFromByte maps unknown type bytes to RAW for forward compatibility.
func fieldTypeFromByte(b byte) FieldType {
	switch FieldType(b) {
	case FieldInt, FieldRaw, FieldText:
		return FieldType(b)
	}
	return FieldRaw
}

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "INT"
	case FieldRaw:
		return "RAW"
	case FieldText:
		return "TEXT"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(t))
}

var (
	ErrLengthMismatch = errors.New("wire: total length does not match payload")
	ErrFieldOverrun   = errors.New("wire: field length runs past buffer")
	ErrBadFieldType   = errors.New("wire: field type mismatch")
	ErrBadIntWidth    = errors.New("wire: INT field must be exactly 8 bytes")
	ErrBadText        = errors.New("wire: TEXT field is not valid UTF-8")
)

// Field is a single typed value inside a frame.
type Field struct {
	Type  FieldType
	Value []byte
}

// IntField encodes a signed 64-bit integer field.
func IntField(v int64) Field {
	buf := make([]byte, IntFieldSize)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return Field{Type: FieldInt, Value: buf}
}

// RawField wraps a byte string field. The slice is not copied.
func RawField(v []byte) Field {
	return Field{Type: FieldRaw, Value: v}
}

// TextField encodes a UTF-8 text field.
func TextField(s string) Field {
	return Field{Type: FieldText, Value: []byte(s)}
}

// Int decodes the field as a signed 64-bit big-endian integer.
func (f Field) Int() (int64, error) {
	if f.Type != FieldInt {
		return 0, fmt.Errorf("%w: want INT, got %s", ErrBadFieldType, f.Type)
	}
	if len(f.Value) != IntFieldSize {
		return 0, ErrBadIntWidth
	}
	return int64(binary.BigEndian.Uint64(f.Value)), nil
}

// Text decodes the field as UTF-8 text. Invalid UTF-8 is a hard error on
// protocol paths; display code may render replacement runes itself.
func (f Field) Text() (string, error) {
	if f.Type != FieldText {
		return "", fmt.Errorf("%w: want TEXT, got %s", ErrBadFieldType, f.Type)
	}
	if !utf8.Valid(f.Value) {
		return "", ErrBadText
	}
	return string(f.Value), nil
}

// Raw returns the field value bytes.
func (f Field) Raw() ([]byte, error) {
	if f.Type != FieldRaw {
		return nil, fmt.Errorf("%w: want RAW, got %s", ErrBadFieldType, f.Type)
	}
	return f.Value, nil
}

func (f Field) clone() Field {
	v := make([]byte, len(f.Value))
	copy(v, f.Value)
	return Field{Type: f.Type, Value: v}
}

// Frame is an ordered list of fields with a consuming read cursor.
type Frame struct {
	Fields []Field
	cursor int
}

// NewFrame builds a frame from fields.
func NewFrame(fields ...Field) *Frame {
	return &Frame{Fields: fields}
}

// Next consumes and returns the next field, or false when exhausted.
func (fr *Frame) Next() (Field, bool) {
	if fr.cursor >= len(fr.Fields) {
		return Field{}, false
	}
	f := fr.Fields[fr.cursor]
	fr.cursor++
	return f, true
}

// NextText consumes the next field and decodes it as TEXT.
func (fr *Frame) NextText() (string, error) {
	f, ok := fr.Next()
	if !ok {
		return "", fmt.Errorf("%w: frame exhausted", ErrBadFieldType)
	}
	return f.Text()
}

// NextRaw consumes the next field and decodes it as RAW.
func (fr *Frame) NextRaw() ([]byte, error) {
	f, ok := fr.Next()
	if !ok {
		return nil, fmt.Errorf("%w: frame exhausted", ErrBadFieldType)
	}
	return f.Raw()
}

// NextInt consumes the next field and decodes it as INT.
func (fr *Frame) NextInt() (int64, error) {
	f, ok := fr.Next()
	if !ok {
		return 0, fmt.Errorf("%w: frame exhausted", ErrBadFieldType)
	}
	return f.Int()
}

// Rewind resets the read cursor.
func (fr *Frame) Rewind() {
	fr.cursor = 0
}

// Clone deep-copies the frame, including field value bytes. Observer hooks
// receive clones so logging can never mutate in-flight messages.
func (fr *Frame) Clone() *Frame {
	fields := make([]Field, len(fr.Fields))
	for i, f := range fr.Fields {
		fields[i] = f.clone()
	}
	return &Frame{Fields: fields}
}

// Encode serializes the frame. When withLength is false the total-length
// prefix is omitted (the form fed to the session cipher).
func (fr *Frame) Encode(withLength bool) []byte {
	body := make([]byte, 0, 64)
	for _, f := range fr.Fields {
		rec := make([]byte, FieldLengthSize)
		binary.BigEndian.PutUint32(rec, uint32(1+len(f.Value)))
		rec = append(rec, byte(f.Type))
		rec = append(rec, f.Value...)
		body = append(body, rec...)
	}
	if !withLength {
		return body
	}
	out := make([]byte, FullLengthSize, FullLengthSize+len(body))
	binary.BigEndian.PutUint64(out, uint64(len(body)))
	return append(out, body...)
}

// Decode parses a length-prefixed frame. The declared total length must match
// the delivered payload exactly, and no field may run past the buffer.
func Decode(data []byte) (*Frame, error) {
	if len(data) < FullLengthSize {
		return nil, ErrLengthMismatch
	}
	total := binary.BigEndian.Uint64(data[:FullLengthSize])
	if total != uint64(len(data)-FullLengthSize) {
		return nil, ErrLengthMismatch
	}
	return decodeBody(data[FullLengthSize:])
}

// decodeBody parses the concatenated field records without a length prefix.
func decodeBody(body []byte) (*Frame, error) {
	fr := &Frame{}
	seek := 0
	for seek+FieldLengthSize <= len(body) {
		fieldLen := int(binary.BigEndian.Uint32(body[seek : seek+FieldLengthSize]))
		seek += FieldLengthSize
		if fieldLen < 1 || seek+fieldLen > len(body) {
			return nil, ErrFieldOverrun
		}
		ftype := fieldTypeFromByte(body[seek])
		value := make([]byte, fieldLen-1)
		copy(value, body[seek+1:seek+fieldLen])
		seek += fieldLen
		fr.Fields = append(fr.Fields, Field{Type: ftype, Value: value})
	}
	if seek != len(body) {
		return nil, ErrFieldOverrun
	}
	return fr, nil
}

// Builder accumulates fields for a frame.
type Builder struct {
	fields []Field
}

// NewBuilder returns an empty frame builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddInt appends an INT field.
func (b *Builder) AddInt(v int64) *Builder {
	b.fields = append(b.fields, IntField(v))
	return b
}

// AddRaw appends a RAW field.
func (b *Builder) AddRaw(v []byte) *Builder {
	b.fields = append(b.fields, RawField(v))
	return b
}

// AddText appends a TEXT field.
func (b *Builder) AddText(s string) *Builder {
	b.fields = append(b.fields, TextField(s))
	return b
}

// Build returns the assembled frame.
func (b *Builder) Build() *Frame {
	return NewFrame(b.fields...)
}
