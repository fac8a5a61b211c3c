package status

import "encoding/binary"

// Cursor is a small sequential reader/writer over a fixed-size byte
// slice, used by every Record's Encode/Decode to avoid hand-tracking
// offsets for each field. It never grows the slice: Record types size
// their Stride() to fit exactly what they Put. Exported so packages
// building their own Record types (internal/retrieve's RL entries)
// share the same field encoding instead of re-deriving it.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for sequential Put/Get calls from offset 0.
func NewCursor(buf []byte) *Cursor { return &Cursor{buf: buf} }

// newCursor is the package-local alias kept so existing Record types
// in this package read unchanged.
func newCursor(buf []byte) *Cursor { return NewCursor(buf) }

func (c *Cursor) PutByte(v byte) {
	c.buf[c.pos] = v
	c.pos++
}

func (c *Cursor) GetByte() byte {
	v := c.buf[c.pos]
	c.pos++
	return v
}

func (c *Cursor) PutBytes(v []byte, width int) {
	n := copy(c.buf[c.pos:c.pos+width], v)
	for i := n; i < width; i++ {
		c.buf[c.pos+i] = 0
	}
	c.pos += width
}

func (c *Cursor) GetBytes(width int) []byte {
	out := make([]byte, width)
	copy(out, c.buf[c.pos:c.pos+width])
	c.pos += width
	return out
}

func (c *Cursor) PutString(v string, width int) {
	c.PutBytes([]byte(v), width)
}

func (c *Cursor) GetString(width int) string {
	raw := c.GetBytes(width)
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}

func (c *Cursor) PutUint32(v uint32) {
	binary.LittleEndian.PutUint32(c.buf[c.pos:c.pos+4], v)
	c.pos += 4
}

func (c *Cursor) GetUint32() uint32 {
	v := binary.LittleEndian.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v
}

func (c *Cursor) PutInt32(v int32) { c.PutUint32(uint32(v)) }
func (c *Cursor) GetInt32() int32  { return int32(c.GetUint32()) }

func (c *Cursor) PutUint64(v uint64) {
	binary.LittleEndian.PutUint64(c.buf[c.pos:c.pos+8], v)
	c.pos += 8
}

func (c *Cursor) GetUint64() uint64 {
	v := binary.LittleEndian.Uint64(c.buf[c.pos : c.pos+8])
	c.pos += 8
	return v
}

func (c *Cursor) PutInt64(v int64) { c.PutUint64(uint64(v)) }
func (c *Cursor) GetInt64() int64  { return int64(c.GetUint64()) }
