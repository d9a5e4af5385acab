package sharelink

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/conneroisu/fiddle/internal/workspace"
)

// formatVersion1 tags compact payloads: msgpack triple, DEFLATE
// compressed, base64url without padding. The version byte sits in
// front of the compressed bytes so a future format change stays
// distinguishable without guessing at the stream.
const formatVersion1 = 0x01

// maxDecodedBytes caps the decompressed payload size. Share links hold
// editor buffers, not archives; anything past this is either a mistake
// or a decompression bomb.
const maxDecodedBytes = 4 << 20

// compactTriple is the msgpack shape inside a compact payload. Short
// keys keep the pre-compression bytes small.
type compactTriple struct {
	Markup string `msgpack:"m"`
	Style  string `msgpack:"c"`
	Script string `msgpack:"j"`
}

// EncodeCompact serializes the triple into a share URL carrying a
// single `s` parameter. The payload is base64url without padding, so
// it needs no percent-escaping and compresses repetitive buffer text
// far below the classic format's size.
func EncodeCompact(origin string, t workspace.Triple) (string, error) {
	base, err := parseOrigin(origin)
	if err != nil {
		return "", err
	}
	payload, err := packCompact(t)
	if err != nil {
		return "", err
	}
	return base + "/?" + ParamCompact + "=" + payload, nil
}

func packCompact(t workspace.Triple) (string, error) {
	body, err := msgpack.Marshal(compactTriple{
		Markup: t.Markup,
		Style:  t.Style,
		Script: t.Script,
	})
	if err != nil {
		return "", fmt.Errorf("packing share payload: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte(formatVersion1)
	zw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("packing share payload: %w", err)
	}
	if _, err := zw.Write(body); err != nil {
		return "", fmt.Errorf("packing share payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("packing share payload: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeCompact(value string) (workspace.Triple, error) {
	var zero workspace.Triple

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return zero, fmt.Errorf("%q parameter: %w: %v", ParamCompact, ErrInvalidEncoding, err)
	}
	if len(raw) < 1 {
		return zero, fmt.Errorf("%q parameter: %w: empty payload", ParamCompact, ErrInvalidEncoding)
	}
	if raw[0] != formatVersion1 {
		return zero, fmt.Errorf("%w: version %#02x", ErrUnsupportedFormat, raw[0])
	}

	zr := flate.NewReader(bytes.NewReader(raw[1:]))
	defer zr.Close()
	body, err := io.ReadAll(io.LimitReader(zr, maxDecodedBytes+1))
	if err != nil {
		return zero, fmt.Errorf("%q parameter: %w: %v", ParamCompact, ErrInvalidEncoding, err)
	}
	if len(body) > maxDecodedBytes {
		return zero, fmt.Errorf("%q parameter: %w: payload exceeds %d bytes", ParamCompact, ErrInvalidEncoding, maxDecodedBytes)
	}

	var t compactTriple
	if err := msgpack.Unmarshal(body, &t); err != nil {
		return zero, fmt.Errorf("%q parameter: %w: %v", ParamCompact, ErrInvalidEncoding, err)
	}
	for _, text := range []string{t.Markup, t.Style, t.Script} {
		if !utf8.ValidString(text) {
			return zero, fmt.Errorf("%q parameter: %w: decoded text is not valid UTF-8", ParamCompact, ErrInvalidEncoding)
		}
	}
	return workspace.Triple{Markup: t.Markup, Style: t.Style, Script: t.Script}, nil
}
