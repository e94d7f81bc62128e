// Package partition models Cosmos partition key values and their wire form.
package partition

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// MaxComponents is the maximum number of hierarchical key components.
const MaxComponents = 3

type componentKind uint8

const (
	kindString componentKind = iota
	kindNumber
	kindBool
	kindNull
)

type component struct {
	kind    componentKind
	str     string
	num     float64
	boolean bool
}

// Key is a partition key value (immutable value object).
// The zero Key is "unresolved" and distinct from Null.
type Key struct {
	components []component
}

// NewString creates a single-component string key.
func NewString(v string) Key {
	return Key{components: []component{{kind: kindString, str: v}}}
}

// NewNumber creates a single-component numeric key.
func NewNumber(v float64) Key {
	return Key{components: []component{{kind: kindNumber, num: v}}}
}

// NewBool creates a single-component boolean key.
func NewBool(v bool) Key {
	return Key{components: []component{{kind: kindBool, boolean: v}}}
}

// Null creates a single-component null key.
func Null() Key {
	return Key{components: []component{{kind: kindNull}}}
}

// NewMulti creates a hierarchical key from up to MaxComponents values.
// Accepted component types: string, float64, int, bool, nil.
func NewMulti(values ...any) (Key, error) {
	if len(values) == 0 {
		return Key{}, errors.New("partition key needs at least one component")
	}
	if len(values) > MaxComponents {
		return Key{}, errors.Newf("partition key has %d components (max %d)", len(values), MaxComponents)
	}
	components := make([]component, 0, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case string:
			components = append(components, component{kind: kindString, str: t})
		case float64:
			components = append(components, component{kind: kindNumber, num: t})
		case int:
			components = append(components, component{kind: kindNumber, num: float64(t)})
		case bool:
			components = append(components, component{kind: kindBool, boolean: t})
		case nil:
			components = append(components, component{kind: kindNull})
		default:
			return Key{}, errors.Newf("partition key component %d has unsupported type %T", i, v)
		}
	}
	return Key{components: components}, nil
}

// IsZero reports whether the key is unresolved.
func (k Key) IsZero() bool { return len(k.components) == 0 }

// Equal reports whether two keys carry the same component values.
func (k Key) Equal(other Key) bool {
	if len(k.components) != len(other.components) {
		return false
	}
	for i, c := range k.components {
		o := other.components[i]
		if c.kind != o.kind {
			return false
		}
		switch c.kind {
		case kindString:
			if c.str != o.str {
				return false
			}
		case kindNumber:
			if c.num != o.num {
				return false
			}
		case kindBool:
			if c.boolean != o.boolean {
				return false
			}
		}
	}
	return true
}

// MarshalJSON renders the x-ms-documentdb-partitionkey array form, e.g. ["tenant-1"].
func (k Key) MarshalJSON() ([]byte, error) {
	if k.IsZero() {
		return nil, errors.New("cannot marshal unresolved partition key")
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, c := range k.components {
		if i > 0 {
			buf.WriteByte(',')
		}
		switch c.kind {
		case kindString:
			b, err := json.Marshal(c.str)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		case kindNumber:
			b, err := json.Marshal(c.num)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		case kindBool:
			b, err := json.Marshal(c.boolean)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		case kindNull:
			buf.WriteString("null")
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// String returns the wire form for logging. Unresolved keys render as "<none>".
func (k Key) String() string {
	if k.IsZero() {
		return "<none>"
	}
	b, err := k.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

// ParseWire decodes the array wire form back into a Key.
func ParseWire(s string) (Key, error) {
	var raw []any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Key{}, errors.Wrap(err, "parse partition key")
	}
	if len(raw) == 0 {
		return Key{}, errors.New("partition key array is empty")
	}
	return NewMulti(raw...)
}

// Extract pulls the partition key value out of a document body given the
// container's key path (e.g. "/partitionKey" or "/tenant/region"). The second
// return is false when the path is absent from the document.
func Extract(body []byte, path string) (Key, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return Key{}, false
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Key{}, false
	}
	var cursor any = doc
	for _, seg := range segments {
		m, ok := cursor.(map[string]any)
		if !ok {
			return Key{}, false
		}
		cursor, ok = m[seg]
		if !ok {
			return Key{}, false
		}
	}
	key, err := NewMulti(cursor)
	if err != nil {
		return Key{}, false
	}
	return key, true
}

func splitPath(path string) []string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}
