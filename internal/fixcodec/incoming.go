package fixcodec

import (
	"bytes"

	"fixengine/internal/dictionary"
	"fixengine/internal/fixbuf"
)

// fieldSpan records where one field's value lives in the backing frame.
type fieldSpan struct {
	offset  int
	length  int
	present bool
}

// GroupInstance is one repeating-group occurrence: a set of member tags
// (and, for nested groups, their own GroupInstances) scoped to this
// occurrence only.
type GroupInstance struct {
	fields map[int]fieldSpan
	nested map[string][]GroupInstance
}

// Field returns the raw value of tag within this group instance.
func (g GroupInstance) Field(buf []byte, tag int) (fixbuf.CharSeq, bool) {
	span, ok := g.fields[tag]
	if !ok {
		return fixbuf.CharSeq{}, false
	}
	return fixbuf.Wrap(buf, span.offset, span.length), true
}

// Nested returns the nested group instances of groupName within g.
func (g GroupInstance) Nested(groupName string) []GroupInstance {
	return g.nested[groupName]
}

// Message is a zero-copy flyweight over one decoded frame. Wrap indexes
// every top-level field (and walks repeating groups using the dictionary)
// in a single pass; accessors return views into the same backing buffer
// with no further allocation except String()/Decimal formatting.
//
// A Message is only valid while its backing buffer is live — once the
// buffer is released back to its pool, the Message must not be used.
type Message struct {
	buf    []byte
	dict   *dictionary.Dictionary
	fields []fieldSpan // indexed by tag, sized maxTag+1
	groups map[string][]GroupInstance

	admin adminFields
}

type adminFields struct {
	beginString fixbuf.CharSeq
	msgType     fixbuf.CharSeq
	senderComp  fixbuf.CharSeq
	targetComp  fixbuf.CharSeq
	sendingTime fixbuf.CharSeq
	checksum    fixbuf.CharSeq
	bodyLength  int64
	seqNum      int64
}

// Wrap indexes buf (one complete frame, as returned by Parser.TryReadFrame)
// against dict and returns a Message flyweight. maxTag bounds the
// top-level field index array.
func Wrap(dict *dictionary.Dictionary, buf []byte, maxTag int) (*Message, error) {
	m := &Message{
		buf:    buf,
		dict:   dict,
		fields: make([]fieldSpan, maxTag+1),
		groups: make(map[string][]GroupInstance),
	}
	if err := m.index(); err != nil {
		return nil, err
	}
	return m, nil
}

// index walks the frame once, populating m.fields and m.groups and caching
// admin fields as they're encountered.
func (m *Message) index() error {
	pos := 0
	for pos < len(m.buf) {
		tag, valueOff, valueLen, next, err := readField(m.buf, pos)
		if err != nil {
			return err
		}
		if tag >= len(m.fields) {
			// Tag out of the configured max-tag range: skip rather than fail,
			// the caller asked for a smaller index than the wire carries.
			pos = next
			continue
		}

		if group := m.dict.GroupByCountTag(tag); group != nil {
			count, err := fixbuf.ParseInt64(m.buf[valueOff : valueOff+valueLen])
			if err != nil {
				return ErrMalformedField
			}
			m.fields[tag] = fieldSpan{offset: valueOff, length: valueLen, present: true}
			instances, consumed, err := readGroupInstances(m.dict, m.buf, next, group, int(count))
			if err != nil {
				return err
			}
			m.groups[group.Name] = instances
			pos = consumed
			continue
		}

		m.fields[tag] = fieldSpan{offset: valueOff, length: valueLen, present: true}
		m.cacheAdmin(tag, valueOff, valueLen)
		pos = next
	}
	return nil
}

func (m *Message) cacheAdmin(tag, off, length int) {
	switch tag {
	case TagBeginString:
		m.admin.beginString = fixbuf.Wrap(m.buf, off, length)
	case TagBodyLength:
		if v, err := fixbuf.ParseInt64(m.buf[off : off+length]); err == nil {
			m.admin.bodyLength = v
		}
	case TagMsgType:
		m.admin.msgType = fixbuf.Wrap(m.buf, off, length)
	case TagSenderCompID:
		m.admin.senderComp = fixbuf.Wrap(m.buf, off, length)
	case TagTargetCompID:
		m.admin.targetComp = fixbuf.Wrap(m.buf, off, length)
	case TagSeqNum:
		if v, err := fixbuf.ParseInt64(m.buf[off : off+length]); err == nil {
			m.admin.seqNum = v
		}
	case TagSendingTime:
		m.admin.sendingTime = fixbuf.Wrap(m.buf, off, length)
	case TagCheckSum:
		m.admin.checksum = fixbuf.Wrap(m.buf, off, length)
	}
}

// readField parses one "tag=value<SOH>" field starting at pos, returning
// the tag, the value's offset/length, and the position of the next field.
func readField(buf []byte, pos int) (tag, valueOff, valueLen, next int, err error) {
	eq := bytes.IndexByte(buf[pos:], '=')
	if eq == -1 {
		return 0, 0, 0, 0, ErrMalformedField
	}
	tagBytes := buf[pos : pos+eq]
	tagVal, perr := fixbuf.ParseInt64(tagBytes)
	if perr != nil {
		return 0, 0, 0, 0, ErrMalformedField
	}

	valueOff = pos + eq + 1
	sohRel := bytes.IndexByte(buf[valueOff:], SOH)
	if sohRel == -1 {
		return 0, 0, 0, 0, ErrMalformedField
	}
	valueLen = sohRel
	next = valueOff + valueLen + 1
	return int(tagVal), valueOff, valueLen, next, nil
}

// readGroupInstances parses count occurrences of group starting at pos,
// each beginning with group.FirstTag, recursing into any nested groups.
// It returns the parsed instances and the position just after the last one.
func readGroupInstances(dict *dictionary.Dictionary, buf []byte, pos int, group *dictionary.GroupDef, count int) ([]GroupInstance, int, error) {
	instances := make([]GroupInstance, 0, count)
	for i := 0; i < count; i++ {
		inst := GroupInstance{fields: make(map[int]fieldSpan), nested: make(map[string][]GroupInstance)}

		for pos < len(buf) {
			tag, valueOff, valueLen, next, err := readField(buf, pos)
			if err != nil {
				return nil, 0, err
			}

			// A field belonging to a different, not-yet-seen group member
			// set, or the next top-level admin tag, ends this instance.
			if !isGroupMember(group, tag) {
				if nestedGroup := nestedGroupDef(dict, group, tag); nestedGroup != nil {
					nestedCount, err := fixbuf.ParseInt64(buf[valueOff : valueOff+valueLen])
					if err != nil {
						return nil, 0, ErrMalformedField
					}
					nestedInstances, consumed, err := readGroupInstances(dict, buf, next, nestedGroup, int(nestedCount))
					if err != nil {
						return nil, 0, err
					}
					inst.nested[nestedGroup.Name] = nestedInstances
					pos = consumed
					continue
				}
				break
			}

			// Re-encountering the group's firstTag (and we already have at
			// least one field in this instance) marks the start of the
			// next instance.
			if tag == group.FirstTag && len(inst.fields) > 0 {
				break
			}

			inst.fields[tag] = fieldSpan{offset: valueOff, length: valueLen, present: true}
			pos = next
		}

		instances = append(instances, inst)
	}
	return instances, pos, nil
}

func isGroupMember(group *dictionary.GroupDef, tag int) bool {
	for _, t := range group.Members {
		if t == tag {
			return true
		}
	}
	return false
}

func nestedGroupDef(dict *dictionary.Dictionary, group *dictionary.GroupDef, tag int) *dictionary.GroupDef {
	for _, name := range group.Nested {
		nested := dict.GroupByName(name)
		if nested != nil && nested.CountTag == tag {
			return nested
		}
	}
	return nil
}

// Raw returns the raw CharSeq value of tag and whether it was present.
func (m *Message) Raw(tag int) (fixbuf.CharSeq, bool) {
	if tag < 0 || tag >= len(m.fields) || !m.fields[tag].present {
		return fixbuf.CharSeq{}, false
	}
	span := m.fields[tag]
	return fixbuf.Wrap(m.buf, span.offset, span.length), true
}

// Int64 returns tag's value parsed as a signed decimal integer.
func (m *Message) Int64(tag int) (int64, error) {
	v, ok := m.Raw(tag)
	if !ok {
		return 0, ErrFieldNotPresent
	}
	return v.Int64()
}

// Char returns the first byte of tag's value.
func (m *Message) Char(tag int) (byte, error) {
	v, ok := m.Raw(tag)
	if !ok || v.Len() == 0 {
		return 0, ErrFieldNotPresent
	}
	return v.At(0), nil
}

// Bool returns tag's value interpreted as FIX's Y/N boolean.
func (m *Message) Bool(tag int) (bool, error) {
	c, err := m.Char(tag)
	if err != nil {
		return false, err
	}
	return c == 'Y', nil
}

// Decimal is a fixed-precision decimal: the value is mantissa * 10^-scale.
type Decimal struct {
	Mantissa int64
	Scale    int
}

// Decimal returns tag's value parsed as a fixed-precision decimal, stored
// as an integer numerator plus a decimal-place count so no floating point
// is involved on the hot path.
func (m *Message) Decimal(tag int) (Decimal, error) {
	v, ok := m.Raw(tag)
	if !ok {
		return Decimal{}, ErrFieldNotPresent
	}
	raw := v.Bytes()

	neg := false
	i := 0
	if len(raw) > 0 && (raw[0] == '-' || raw[0] == '+') {
		neg = raw[0] == '-'
		i = 1
	}

	var mantissa int64
	scale := 0
	seenDot := false
	for ; i < len(raw); i++ {
		b := raw[i]
		switch {
		case b == '.':
			if seenDot {
				return Decimal{}, ErrMalformedField
			}
			seenDot = true
		case b >= '0' && b <= '9':
			mantissa = mantissa*10 + int64(b-'0')
			if seenDot {
				scale++
			}
		default:
			return Decimal{}, ErrMalformedField
		}
	}
	if neg {
		mantissa = -mantissa
	}
	return Decimal{Mantissa: mantissa, Scale: scale}, nil
}

// Group returns the parsed instances of the named repeating group.
func (m *Message) Group(name string) []GroupInstance {
	return m.groups[name]
}

// BeginString returns the cached tag 8 value.
func (m *Message) BeginString() fixbuf.CharSeq { return m.admin.beginString }

// MsgType returns the cached tag 35 value.
func (m *Message) MsgType() fixbuf.CharSeq { return m.admin.msgType }

// SenderCompID returns the cached tag 49 value.
func (m *Message) SenderCompID() fixbuf.CharSeq { return m.admin.senderComp }

// TargetCompID returns the cached tag 56 value.
func (m *Message) TargetCompID() fixbuf.CharSeq { return m.admin.targetComp }

// SendingTime returns the cached tag 52 value.
func (m *Message) SendingTime() fixbuf.CharSeq { return m.admin.sendingTime }

// Checksum returns the cached tag 10 value.
func (m *Message) Checksum() fixbuf.CharSeq { return m.admin.checksum }

// BodyLength returns the cached tag 9 value.
func (m *Message) BodyLength() int64 { return m.admin.bodyLength }

// SeqNum returns the cached tag 34 value.
func (m *Message) SeqNum() int64 { return m.admin.seqNum }
