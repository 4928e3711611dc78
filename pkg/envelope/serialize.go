package envelope

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// Wire format prefix bytes.
const (
	wireRaw  byte = 0x01
	wireLzma byte = 0x02
)

// compressThreshold is the encoded size above which envelopes are
// lzma-compressed on the wire.
const compressThreshold = 4096

// Encode serializes an envelope for transmission: GOB encoding with a
// one-byte format prefix, lzma-compressed when the encoding is large
// enough to be worth it.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, ErrMalformed
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", env.Header.ID, err)
	}

	if buf.Len() <= compressThreshold {
		return append([]byte{wireRaw}, buf.Bytes()...), nil
	}

	compressed, err := compressWithLzma(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("compress envelope %s: %w", env.Header.ID, err)
	}
	return append([]byte{wireLzma}, compressed...), nil
}

// Decode deserializes a received envelope. Unknown format prefixes and
// garbage bytes yield ErrMalformed so the receive path can collapse
// them into the generic unreadable signal.
func Decode(data []byte) (*Envelope, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: short frame", ErrMalformed)
	}

	body := data[1:]
	switch data[0] {
	case wireRaw:
	case wireLzma:
		decompressed, err := decompressWithLzma(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		body = decompressed
	default:
		return nil, fmt.Errorf("%w: unknown wire format %#x", ErrMalformed, data[0])
	}

	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &env, nil
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
