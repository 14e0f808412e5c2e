/*
Package jsonfast offers a minimal JSON object builder for the fixed message
shapes emitted on the routing hot path.
*/
package jsonfast

import "time"

// Builder appends one flat JSON object into a byte slice.
// Field names are written as-is and must not need escaping.
type Builder struct {
	buf    []byte
	opened bool
	first  bool
}

// New creates a new builder with initial capacity.
func New(capacity int) *Builder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Builder{
		buf:   make([]byte, 0, capacity),
		first: true,
	}
}

// Bytes returns the underlying buffer (do not modify after use).
func (b *Builder) Bytes() []byte {
	return b.buf
}

// BeginObject starts a JSON object.
func (b *Builder) BeginObject() {
	b.buf = append(b.buf, '{')
	b.opened = true
	b.first = true
}

// EndObject ends a JSON object.
func (b *Builder) EndObject() {
	if !b.opened {
		b.BeginObject()
	}
	b.buf = append(b.buf, '}')
	b.opened = false
}

// AddStringField adds a "name":"value" field with escaping.
func (b *Builder) AddStringField(name, value string) {
	b.key(name)
	b.appendString(value)
}

// AddRawJSONField adds a "name":<raw json> field without escaping.
// The value must be valid JSON; an empty value is written as null.
func (b *Builder) AddRawJSONField(name string, rawJSON []byte) {
	b.key(name)
	if len(rawJSON) == 0 {
		b.buf = append(b.buf, "null"...)
		return
	}
	b.buf = append(b.buf, rawJSON...)
}

// AddStringArrayField adds a "name":["a","b"] field. A nil slice is written as [].
func (b *Builder) AddStringArrayField(name string, values []string) {
	b.key(name)
	b.buf = append(b.buf, '[')
	for i, v := range values {
		if i > 0 {
			b.buf = append(b.buf, ',')
		}
		b.appendString(v)
	}
	b.buf = append(b.buf, ']')
}

// AddTimeField adds a "name":"YYYY-MM-DDTHH:MM:SS.mmmZ" field in UTC
// without going through time.Format.
func (b *Builder) AddTimeField(name string, t time.Time) {
	b.key(name)
	t = t.UTC()
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	b.buf = append(b.buf, '"')
	b.append4(year)
	b.buf = append(b.buf, '-')
	b.append2(int(month))
	b.buf = append(b.buf, '-')
	b.append2(day)
	b.buf = append(b.buf, 'T')
	b.append2(hour)
	b.buf = append(b.buf, ':')
	b.append2(minute)
	b.buf = append(b.buf, ':')
	b.append2(sec)
	b.buf = append(b.buf, '.')
	b.append3(t.Nanosecond() / int(time.Millisecond))
	b.buf = append(b.buf, 'Z', '"')
}

// Quote returns s as an escaped JSON string literal.
func Quote(s string) []byte {
	b := New(len(s) + 2)
	b.appendString(s)
	return b.buf
}

func (b *Builder) key(name string) {
	b.sep()
	b.buf = append(b.buf, '"')
	b.buf = append(b.buf, name...)
	b.buf = append(b.buf, '"', ':')
}

func (b *Builder) sep() {
	if !b.opened {
		b.BeginObject()
		return
	}
	if b.first {
		b.first = false
		return
	}
	b.buf = append(b.buf, ',')
}

func (b *Builder) appendString(s string) {
	b.buf = append(b.buf, '"')
	b.escapeString(s)
	b.buf = append(b.buf, '"')
}

// escapeString escapes JSON special characters.
func (b *Builder) escapeString(s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			b.buf = append(b.buf, '\\', c)
		case '\n':
			b.buf = append(b.buf, '\\', 'n')
		case '\r':
			b.buf = append(b.buf, '\\', 'r')
		case '\t':
			b.buf = append(b.buf, '\\', 't')
		default:
			if c < 0x20 {
				b.buf = append(b.buf, '\\', 'u', '0', '0', hex[c>>4], hex[c&0x0f])
			} else {
				b.buf = append(b.buf, c)
			}
		}
	}
}

func (b *Builder) append2(v int) {
	b.buf = append(b.buf, byte('0'+(v/10)%10), byte('0'+v%10))
}

func (b *Builder) append3(v int) {
	b.buf = append(b.buf, byte('0'+(v/100)%10), byte('0'+(v/10)%10), byte('0'+v%10))
}

func (b *Builder) append4(v int) {
	b.buf = append(b.buf,
		byte('0'+(v/1000)%10),
		byte('0'+(v/100)%10),
		byte('0'+(v/10)%10),
		byte('0'+v%10),
	)
}

var hex = "0123456789abcdef"
