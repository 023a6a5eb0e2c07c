package redis

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// bitmapValue is a compressed bitmap inside a player document.
// Encoded as an array of byte values; decoded from an array or a string.
type bitmapValue []byte

func (b bitmapValue) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(b)*4 + 2)
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%d", v)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (b *bitmapValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
			*b = decoded
			return nil
		}
		*b = []byte(s)
		return nil
	}

	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("bitmap value: %w", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("bitmap value: byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}
