package wasmbuild

import (
	"github.com/tetratelabs/wazero/api"
)

// appendULEB128 appends v in unsigned LEB128 form.
func appendULEB128(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// appendSLEB128 appends v in signed LEB128 form.
func appendSLEB128[T int32 | int64](buf []byte, v T) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func appendName(buf []byte, s string) []byte {
	buf = appendULEB128(buf, uint32(len(s)))
	return append(buf, s...)
}

func valType(t api.ValueType) byte {
	switch t {
	case api.ValueTypeI64:
		return 0x7e
	case api.ValueTypeF32:
		return 0x7d
	case api.ValueTypeF64:
		return 0x7c
	}
	return 0x7f
}

// appendSection appends a section with its id and byte length.
func appendSection(buf []byte, id byte, body []byte) []byte {
	buf = append(buf, id)
	buf = appendULEB128(buf, uint32(len(body)))
	return append(buf, body...)
}
