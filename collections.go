package ende

import (
	"strconv"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Generic helpers for the composite shapes every format needs: sequences,
// maps and optional values. Each takes the element codec as a function so
// the same helper serves hand-written Encode methods, the derive package and
// tests alike.

// sliceAllocCap bounds the initial allocation of a decoded slice or map. A
// stream can declare any length it likes; storage only grows as elements
// actually arrive.
const sliceAllocCap = 4096

// EncodeSlice writes the length of s per the active size representation
// followed by each element in order.
func EncodeSlice[T any](e *Encoder, s []T, element func(*Encoder, T) error) error {
	leave, err := e.ctx.Enter()
	if err != nil {
		return err
	}
	defer leave()

	if err := e.WriteSize(len(s)); err != nil {
		return err
	}
	for i, v := range s {
		pop := e.ctx.PushPath(strconv.Itoa(i))
		err := element(e, v)
		pop()
		if err != nil {
			return err
		}
	}
	return nil
}

// DecodeSlice reads a length per the active size representation followed by
// that many elements. The declared length is validated before any storage is
// committed to it.
func DecodeSlice[T any](d *Decoder, element func(*Decoder) (T, error)) ([]T, error) {
	leave, err := d.ctx.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	n, err := d.ReadSize()
	if err != nil {
		return nil, err
	}
	s := make([]T, 0, min(n, sliceAllocCap))
	for i := 0; i < n; i++ {
		pop := d.ctx.PushPath(strconv.Itoa(i))
		v, err := element(d)
		pop()
		if err != nil {
			return nil, err
		}
		s = append(s, v)
	}
	return s, nil
}

// EncodeMap writes the length of m followed by each key-value pair. Pairs are
// written in Go's map iteration order; formats that need a canonical byte
// stream should encode a sorted slice of pairs instead.
func EncodeMap[K comparable, V any](e *Encoder, m map[K]V, key func(*Encoder, K) error, value func(*Encoder, V) error) error {
	leave, err := e.ctx.Enter()
	if err != nil {
		return err
	}
	defer leave()

	if err := e.WriteSize(len(m)); err != nil {
		return err
	}
	for k, v := range m {
		if err := key(e, k); err != nil {
			return err
		}
		if err := value(e, v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMap reads a length followed by that many key-value pairs.
func DecodeMap[K comparable, V any](d *Decoder, key func(*Decoder) (K, error), value func(*Decoder) (V, error)) (map[K]V, error) {
	leave, err := d.ctx.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	n, err := d.ReadSize()
	if err != nil {
		return nil, err
	}
	m := make(map[K]V, min(n, sliceAllocCap))
	for i := 0; i < n; i++ {
		k, err := key(d)
		if err != nil {
			return nil, err
		}
		v, err := value(d)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// EncodeOption writes a presence boolean followed by the value when p is
// non-nil. A flattened boolean in the context elides the presence byte; see
// Context.FlattenBool.
func EncodeOption[T any](e *Encoder, p *T, element func(*Encoder, T) error) error {
	if err := e.WriteBool(p != nil); err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	return element(e, *p)
}

// DecodeOption reads a presence boolean and, when set, the value.
func DecodeOption[T any](d *Decoder, element func(*Decoder) (T, error)) (*T, error) {
	present, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := element(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// EncodeUints writes a slice of any unsigned integer type per the active
// numerical representation, at the natural bit-width of T.
func EncodeUints[T constraints.Unsigned](e *Encoder, s []T) error {
	width := widthOf[T]()
	return EncodeSlice(e, s, func(e *Encoder, v T) error {
		return e.WriteUintWith(uint64(v), width, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
	})
}

// DecodeUints reads a slice of any unsigned integer type per the active
// numerical representation.
func DecodeUints[T constraints.Unsigned](d *Decoder) ([]T, error) {
	width := widthOf[T]()
	return DecodeSlice(d, func(d *Decoder) (T, error) {
		v, err := d.ReadUintWith(width, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
		return T(v), err
	})
}

// EncodeInts writes a slice of any signed integer type per the active
// numerical representation, at the natural bit-width of T.
func EncodeInts[T constraints.Signed](e *Encoder, s []T) error {
	width := widthOf[T]()
	return EncodeSlice(e, s, func(e *Encoder, v T) error {
		return e.WriteIntWith(int64(v), width, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
	})
}

// DecodeInts reads a slice of any signed integer type per the active
// numerical representation.
func DecodeInts[T constraints.Signed](d *Decoder) ([]T, error) {
	width := widthOf[T]()
	return DecodeSlice(d, func(d *Decoder) (T, error) {
		v, err := d.ReadIntWith(width, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
		return T(v), err
	})
}

// widthOf returns the bit-width of the integer type T.
func widthOf[T constraints.Integer]() BitWidth {
	var v T
	switch unsafe.Sizeof(v) {
	case 1:
		return Bit8
	case 2:
		return Bit16
	case 4:
		return Bit32
	default:
		return Bit64
	}
}
