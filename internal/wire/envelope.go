package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// Delimiter brackets every structured reply.
	Delimiter = '@'

	// ErrorToken is the whole body of a reply to a malformed request.
	ErrorToken = "@ERROR@"

	// ContentType is used for every firmware reply, including empty ones.
	ContentType = "text/plain; charset=utf-8"

	// MaxRequestSize bounds a firmware request body.
	MaxRequestSize = 4 << 10
)

// Encode marshals v and wraps it in the @ delimiters.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding reply: %w", err)
	}
	out := make([]byte, 0, len(data)+2)
	out = append(out, Delimiter)
	out = append(out, data...)
	out = append(out, Delimiter)
	return out, nil
}

// WrapText wraps an already formatted message, such as the sensor
// configuration string, in the @ delimiters.
func WrapText(msg string) []byte {
	return []byte(string(Delimiter) + msg + string(Delimiter))
}

// Unwrap strips surrounding whitespace and, if present on both ends, the
// @ delimiters. Firmware sends bare JSON; some bench tools echo replies
// back with the delimiters still attached.
func Unwrap(body []byte) []byte {
	body = bytes.TrimSpace(body)
	if len(body) >= 2 && body[0] == Delimiter && body[len(body)-1] == Delimiter {
		return body[1 : len(body)-1]
	}
	return body
}

// Decode unwraps body and unmarshals it into v.
func Decode(body []byte, v any) error {
	payload := Unwrap(body)
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformed)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}
