package keycase

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// ConvertJSON rewrites the object keys of an encoded JSON document.
//
// Member order and scalar bytes are preserved exactly; only keys change and
// insignificant whitespace inside containers is dropped. When two members
// collide the later one (in document order) wins and takes the position of the
// first. Invalid JSON is returned unchanged together with ErrNotJSON.
func (t *Transformer) ConvertJSON(raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) {
		return raw, ErrNotJSON
	}
	var buf bytes.Buffer
	buf.Grow(len(raw))
	if err := t.writeJSON(&buf, gjson.ParseBytes(raw), "$", 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type member struct {
	key    string
	source string
	value  gjson.Result
}

func (t *Transformer) writeJSON(buf *bytes.Buffer, r gjson.Result, path string, depth int) error {
	switch {
	case r.IsObject():
		if depth >= t.maxDepth {
			return ErrTooDeep
		}
		members, err := t.members(r, path)
		if err != nil {
			return err
		}
		buf.WriteByte('{')
		for i, m := range members {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, m.key)
			buf.WriteByte(':')
			if err := t.writeJSON(buf, m.value, keyPath(path, m.source), depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case r.IsArray():
		if depth >= t.maxDepth {
			return ErrTooDeep
		}
		var err error
		i := 0
		buf.WriteByte('[')
		r.ForEach(func(_, v gjson.Result) bool {
			if i > 0 {
				buf.WriteByte(',')
			}
			err = t.writeJSON(buf, v, indexPath(path, i), depth+1)
			i++
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte(']')
	default:
		buf.WriteString(strings.TrimSpace(r.Raw))
	}
	return nil
}

// members converts the keys of an object and resolves collisions.
func (t *Transformer) members(r gjson.Result, path string) ([]member, error) {
	var (
		members []member
		err     error
	)
	index := make(map[string]int)
	r.ForEach(func(k, v gjson.Result) bool {
		nk, cerr := t.convert(k.Str)
		if cerr != nil {
			err = &ConverterError{Path: path, Key: k.Str, Err: cerr}
			return false
		}
		if i, ok := index[nk]; ok {
			if err = t.collide(Collision{Path: path, Target: nk, Sources: []string{members[i].source, k.Str}}); err != nil {
				return false
			}
			members[i].source = k.Str
			members[i].value = v
			return true
		}
		index[nk] = len(members)
		members = append(members, member{key: nk, source: k.Str, value: v})
		return true
	})
	return members, err
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
}
