package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Marshal returns deterministic JSON for any value encoding/json accepts.
// Object keys are sorted, arrays keep their order, numbers keep the text
// encoding/json produced for them.
func Marshal(v interface{}) ([]byte, error) {
	tree, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	write(&buf, tree)
	return buf.Bytes(), nil
}

// Digest is the hex sha256 of the canonical encoding of v.
func Digest(v interface{}) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// normalize round-trips v through encoding/json so struct tags, omitempty and
// custom marshalers apply before keys are sorted.
func normalize(v interface{}) (interface{}, error) {
	switch v.(type) {
	case nil, bool, string, json.Number, map[string]interface{}, []interface{}:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	return tree, nil
}

func write(buf *bytes.Buffer, v interface{}) {
	switch vv := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(vv))
	case json.Number:
		buf.WriteString(vv.String())
	case string:
		b, _ := json.Marshal(vv)
		buf.Write(b)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range vv {
			if i > 0 {
				buf.WriteByte(',')
			}
			write(buf, mustNormalize(elem))
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			write(buf, mustNormalize(vv[k]))
		}
		buf.WriteByte('}')
	}
}

// mustNormalize handles Go values nested inside caller-built maps. Values
// that cannot be encoded become null.
func mustNormalize(v interface{}) interface{} {
	n, err := normalize(v)
	if err != nil {
		return nil
	}
	return n
}
