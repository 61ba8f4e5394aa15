package pipeline

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// encodingCascade lists the decoders tried in order by DecodeText:
// utf-8, gbk, gb2312, utf-16, latin-1; first successful decode wins.
//
// golang.org/x/text's encoding package handles the GBK/GB2312/UTF-16
// legacy encodings this cascade needs; hand-rolling byte-pattern
// detection for those would just re-implement a fraction of it.
var encodingCascade = []struct {
	name string
	dec  *encoding.Decoder
}{
	{"utf-8", nil}, // validated directly, no transform needed
	{"gbk", simplifiedchinese.GBK.NewDecoder()},
	{"gb2312", simplifiedchinese.HZGB2312.NewDecoder()},
	{"utf-16", unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()},
	{"latin-1", charmap.ISO8859_1.NewDecoder()},
}

// DecodeText tries each encoding in encodingCascade in order and
// returns the first one that decodes successfully, along with its name.
// A decoder that substitutes U+FFFD for undecodable bytes counts as a
// failed decode.
func DecodeText(raw []byte) (string, string, bool) {
	for _, enc := range encodingCascade {
		if enc.dec == nil {
			if utf8.Valid(raw) {
				return string(raw), enc.name, true
			}
			continue
		}
		text, err := decodeWith(enc.dec, raw)
		if err == nil {
			return text, enc.name, true
		}
	}
	return "", "", false
}

func decodeWith(dec *encoding.Decoder, raw []byte) (string, error) {
	reader := transform.NewReader(bytes.NewReader(raw), dec)
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(out) {
		return "", errInvalidUTF8
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", errReplacementChar
	}
	return string(out), nil
}

var errInvalidUTF8 = decodeError("decoded output is not valid UTF-8")

var errReplacementChar = decodeError("decoder substituted U+FFFD for undecodable bytes")

type decodeError string

func (e decodeError) Error() string { return string(e) }
