package artifact

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the variant held by a Node.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindBytes
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Binary leaves are written as {"type": BytesTag, "data": <base64>}.
// legacyBytesTag is accepted on read only.
const (
	BytesTag       = "Bytes"
	legacyBytesTag = "Uint8Array"
)

// Node is one value of a verification-key tree. Exactly the field matching
// Kind is meaningful.
type Node struct {
	Kind   Kind
	Bool   bool
	Number json.Number
	Str    string
	Bytes  []byte
	Items  []Node
	Fields map[string]Node
}

func Null() Node { return Node{Kind: KindNull} }
func Bool(b bool) Node { return Node{Kind: KindBool, Bool: b} }
func String(s string) Node { return Node{Kind: KindString, Str: s} }
func Int(i int64) Node { return Node{Kind: KindNumber, Number: json.Number(fmt.Sprint(i))} }
func Number(n json.Number) Node { return Node{Kind: KindNumber, Number: n} }

func Bytes(b []byte) Node {
	if b == nil {
		b = []byte{}
	}
	return Node{Kind: KindBytes, Bytes: b}
}

func Array(items ...Node) Node {
	if items == nil {
		items = []Node{}
	}
	return Node{Kind: KindArray, Items: items}
}

func Object(fields map[string]Node) Node {
	if fields == nil {
		fields = map[string]Node{}
	}
	return Node{Kind: KindObject, Fields: fields}
}

// Get returns the field named key of an object node.
func (n Node) Get(key string) (Node, bool) {
	if n.Kind != KindObject {
		return Node{}, false
	}
	v, ok := n.Fields[key]
	return v, ok
}

// BytesAt returns the binary leaf at key.
func (n Node) BytesAt(key string) ([]byte, error) {
	v, ok := n.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrDeserialization, key)
	}
	if v.Kind != KindBytes {
		return nil, fmt.Errorf("%w: field %q is %s, want bytes", ErrDeserialization, key, v.Kind)
	}
	return v.Bytes, nil
}

// StringAt returns the string leaf at key.
func (n Node) StringAt(key string) (string, error) {
	v, ok := n.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrDeserialization, key)
	}
	if v.Kind != KindString {
		return "", fmt.Errorf("%w: field %q is %s, want string", ErrDeserialization, key, v.Kind)
	}
	return v.Str, nil
}

// Validate walks the tree and rejects shapes that would not survive a round
// trip: unknown kinds, invalid numbers and plain objects that look like a
// binary tag.
func (n Node) Validate() error {
	switch n.Kind {
	case KindNull, KindBool, KindString, KindBytes:
		return nil
	case KindNumber:
		if _, err := n.Number.Float64(); err != nil {
			return fmt.Errorf("invalid number %q: %w", n.Number, err)
		}
		return nil
	case KindArray:
		for i, it := range n.Items {
			if err := it.Validate(); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	case KindObject:
		if looksTagged(n.Fields) {
			return fmt.Errorf("object with keys type/data is reserved for binary leaves")
		}
		for k, v := range n.Fields {
			if err := v.Validate(); err != nil {
				return fmt.Errorf(".%s: %w", k, err)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown node kind %d", n.Kind)
}

func looksTagged(fields map[string]Node) bool {
	if len(fields) != 2 {
		return false
	}
	t, ok := fields["type"]
	if !ok || t.Kind != KindString {
		return false
	}
	_, ok = fields["data"]
	return ok && (t.Str == BytesTag || t.Str == legacyBytesTag)
}

type taggedBytes struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (n Node) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(n.Bool)
	case KindNumber:
		return json.Marshal(n.Number)
	case KindString:
		return json.Marshal(n.Str)
	case KindBytes:
		return json.Marshal(taggedBytes{Type: BytesTag, Data: base64.StdEncoding.EncodeToString(n.Bytes)})
	case KindArray:
		items := n.Items
		if items == nil {
			items = []Node{}
		}
		return json.Marshal(items)
	case KindObject:
		keys := make([]string, 0, len(n.Fields))
		for k := range n.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := n.Fields[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown node kind %d", n.Kind)
}

// UnmarshalJSON implements json.Unmarshaler. Objects of the form
// {"type":"Bytes","data":"..."} (or the legacy "Uint8Array" tag) decode to
// binary leaves.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	v, err := fromAny(raw)
	if err != nil {
		return err
	}
	*n = v
	return nil
}

func fromAny(v any) (Node, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Node, len(t))
		for i, it := range t {
			n, err := fromAny(it)
			if err != nil {
				return Node{}, err
			}
			items[i] = n
		}
		return Array(items...), nil
	case map[string]any:
		if tag, ok := t["type"].(string); ok && len(t) == 2 && (tag == BytesTag || tag == legacyBytesTag) {
			data, ok := t["data"].(string)
			if !ok {
				return Node{}, fmt.Errorf("%w: %s leaf without base64 data", ErrDeserialization, tag)
			}
			b, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return Node{}, fmt.Errorf("%w: %s leaf: %v", ErrDeserialization, tag, err)
			}
			return Bytes(b), nil
		}
		fields := make(map[string]Node, len(t))
		for k, it := range t {
			n, err := fromAny(it)
			if err != nil {
				return Node{}, err
			}
			fields[k] = n
		}
		return Object(fields), nil
	}
	return Node{}, fmt.Errorf("%w: unexpected json value %T", ErrDeserialization, v)
}
