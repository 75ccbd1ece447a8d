package dkimsign

import (
	"github.com/tinylib/msgp/msgp"
)

var (
	_ msgp.Marshaler   = (*Message)(nil)
	_ msgp.Unmarshaler = (*Message)(nil)
	_ msgp.Sizer       = (*Message)(nil)
)

// MarshalMsg implements msgp.Marshaler.
//
// The encoding is a two-entry map: "headers" holds an array of
// {"name","value"} maps in message order and "body" holds the raw body.
func (m *Message) MarshalMsg(b []byte) (o []byte, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o = msgp.Require(b, m.msgsize())
	o = msgp.AppendMapHeader(o, 2)
	o = msgp.AppendString(o, "headers")
	o = msgp.AppendArrayHeader(o, uint32(len(m.headers)))
	for _, h := range m.headers {
		o = msgp.AppendMapHeader(o, 2)
		o = msgp.AppendString(o, "name")
		o = msgp.AppendString(o, h.Name)
		o = msgp.AppendString(o, "value")
		o = msgp.AppendString(o, h.Value)
	}
	o = msgp.AppendString(o, "body")
	o = msgp.AppendBytes(o, m.body)
	return o, nil
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (m *Message) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var headers Headers
	var body []byte

	var field []byte
	var zb0001 uint32
	zb0001, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		err = msgp.WrapError(err)
		return
	}
	for zb0001 > 0 {
		zb0001--
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			err = msgp.WrapError(err)
			return
		}
		switch msgp.UnsafeString(field) {
		case "headers":
			var zb0002 uint32
			zb0002, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				err = msgp.WrapError(err, "headers")
				return
			}
			headers = make(Headers, zb0002)
			for i := range headers {
				bts, err = headers[i].unmarshalMsg(bts)
				if err != nil {
					err = msgp.WrapError(err, "headers", i)
					return
				}
			}
		case "body":
			body, bts, err = msgp.ReadBytesBytes(bts, nil)
			if err != nil {
				err = msgp.WrapError(err, "body")
				return
			}
		default:
			bts, err = msgp.Skip(bts)
			if err != nil {
				err = msgp.WrapError(err)
				return
			}
		}
	}

	if headers == nil {
		headers = make(Headers, 0)
	}
	m.mu.Lock()
	m.headers = headers
	m.body = body
	m.mu.Unlock()
	o = bts
	return
}

func (h *Header) unmarshalMsg(bts []byte) (o []byte, err error) {
	var field []byte
	var zb0001 uint32
	zb0001, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return
	}
	for zb0001 > 0 {
		zb0001--
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return
		}
		switch msgp.UnsafeString(field) {
		case "name":
			h.Name, bts, err = msgp.ReadStringBytes(bts)
			if err != nil {
				err = msgp.WrapError(err, "name")
				return
			}
		case "value":
			h.Value, bts, err = msgp.ReadStringBytes(bts)
			if err != nil {
				err = msgp.WrapError(err, "value")
				return
			}
		default:
			bts, err = msgp.Skip(bts)
			if err != nil {
				return
			}
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message.
func (m *Message) Msgsize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.msgsize()
}

func (m *Message) msgsize() (s int) {
	s = msgp.MapHeaderSize + msgp.StringPrefixSize + len("headers") + msgp.ArrayHeaderSize
	for _, h := range m.headers {
		s += msgp.MapHeaderSize +
			msgp.StringPrefixSize + len("name") + msgp.StringPrefixSize + len(h.Name) +
			msgp.StringPrefixSize + len("value") + msgp.StringPrefixSize + len(h.Value)
	}
	s += msgp.StringPrefixSize + len("body") + msgp.BytesPrefixSize + len(m.body)
	return
}

// ToMessagePack serializes the message to MessagePack bytes.
func (m *Message) ToMessagePack() ([]byte, error) {
	return m.MarshalMsg(nil)
}

// FromMessagePack deserializes a message from MessagePack bytes.
func FromMessagePack(data []byte) (*Message, error) {
	m := NewMessage()
	if _, err := m.UnmarshalMsg(data); err != nil {
		return nil, err
	}
	return m, nil
}
