// Package codec holds the value serializers a quotacache.Cache uses to turn a
// caller's V into the opaque payload bytes it stores.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
