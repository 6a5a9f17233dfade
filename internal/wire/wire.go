package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1
	kindIndex byte = 2

	headerLen = 4 + 1 + 1 + 4
)

var (
	ErrCorrupt    = errors.New("quotacache: corrupt entry")
	ErrKeyTooLong = errors.New("quotacache: index key length out of range")
	magic4        = [...]byte{'Q', 'C', 'A', 'C'}
)

func header(b []byte, kind byte) bool {
	return len(b) >= headerLen && bytes.Equal(b[:4], magic4[:]) && b[4] == version && b[5] == kind
}

// Entry: magic(4) | ver(1) | kind(1=entry) | vlen(u32 be) | payload(vlen)
func EncodeEntry(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func DecodeEntry(b []byte) ([]byte, error) {
	if !header(b, kindEntry) {
		return nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[6:headerLen]))
	if vlen != len(b)-headerLen {
		return nil, ErrCorrupt
	}
	return b[headerLen:], nil
}

// Index:
//
//	magic(4) | ver(1) | kind(2=index) | n(u32 be)
//	keyLen(u16 be) | key(keyLen) * n
//
// Order is preserved: first key = most recently used.
func EncodeIndex(keys []string) ([]byte, error) {
	total := headerLen
	for _, k := range keys {
		if l := len(k); l == 0 || l > 0xFFFF {
			return nil, ErrKeyTooLong
		}
		total += 2 + len(k)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindIndex)

	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(keys)))
	buf.Write(u4[:])

	for _, k := range keys {
		binary.BigEndian.PutUint16(u2[:], uint16(len(k)))
		buf.Write(u2[:])
		buf.WriteString(k)
	}
	return buf.Bytes(), nil
}

func DecodeIndex(b []byte) ([]string, error) {
	if !header(b, kindIndex) {
		return nil, ErrCorrupt
	}
	off := 6
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4

	// every key costs at least 3 bytes; do not trust n for preallocation
	if n > (len(b)-off)/3 {
		return nil, ErrCorrupt
	}
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen == 0 || klen > len(b)-off {
			return nil, ErrCorrupt
		}
		keys = append(keys, string(b[off:off+klen]))
		off += klen
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return keys, nil
}
