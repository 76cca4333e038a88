// Package derive builds Encode and Decode implementations for plain Go types
// through reflection, so most values never need hand-written codec methods.
// The wire layout is exactly what the equivalent hand-written code would
// produce: fields in declaration order, slices and maps behind a size,
// pointers behind a presence boolean, interfaces behind a registered
// discriminant.
//
// Codecs are built once per type and cached; after the first use of a type,
// encoding it costs reflection value accessors but no analysis. Types with
// hand-written Encode and Decode methods are delegated to, never rebuilt, so
// reflected and hand-written codecs mix freely in one value tree.
package derive

import (
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/bohdloss/ende"
	"github.com/bohdloss/ende/endio"
)

// allocCap bounds the storage committed to a decoded slice before its
// elements actually arrive.
const allocCap = 4096

type codecFunc struct {
	enc func(e *ende.Encoder, v reflect.Value) error
	dec func(d *ende.Decoder, v reflect.Value) error
}

var codecCache = xsync.NewMap[reflect.Type, *codecFunc]()

var (
	encodableType = reflect.TypeOf((*ende.Encodable)(nil)).Elem()
	decodableType = reflect.TypeOf((*ende.Decodable)(nil)).Elem()
)

// Encode writes v to e using a reflected codec. Pointers are followed at the
// top level, so Encode(e, &value) and Encode(e, value) produce the same
// bytes; a nested pointer still encodes as an optional.
func Encode(e *ende.Encoder, v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return fmt.Errorf("%w: encoding nil %v", ende.ErrInvalidData, rv.Type())
		}
		// Always land on the element type, even when the pointer itself has
		// an Encode method; the element codec delegates through an
		// addressable copy, and Decode resolves the same element type, so
		// Marshal(v) and Marshal(&v) stay byte-identical.
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return fmt.Errorf("%w: encoding untyped nil", ende.ErrInvalidData)
	}
	c, err := codecOf(rv.Type())
	if err != nil {
		return err
	}
	return c.enc(e, rv)
}

// Decode reads into v, which must be a non-nil pointer, using a reflected
// codec.
func Decode(d *ende.Decoder, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("derive: Decode into %T, need a non-nil pointer", v)
	}
	rv = rv.Elem()
	c, err := codecOf(rv.Type())
	if err != nil {
		return err
	}
	return c.dec(d, rv)
}

// Marshal encodes v to a byte slice under default settings.
func Marshal(v any) ([]byte, error) {
	return MarshalWith(nil, v)
}

// MarshalWith encodes v to a byte slice under ctx.
func MarshalWith(ctx *ende.Context, v any) ([]byte, error) {
	var buff endio.Buffer
	if err := Encode(ende.NewEncoder(&buff, ctx), v); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// Unmarshal decodes data into v under default settings.
func Unmarshal(data []byte, v any) error {
	return UnmarshalWith(nil, data, v)
}

// UnmarshalWith decodes data into v under ctx.
func UnmarshalWith(ctx *ende.Context, data []byte, v any) error {
	var buff endio.Buffer
	buff.Write(data)
	return Decode(ende.NewDecoder(&buff, ctx), v)
}

// Codec is a reflected codec bound to one type, for callers that want the
// type check and cache lookup paid once instead of per call.
type Codec[T any] struct {
	c *codecFunc
}

// For returns the codec for T, building it on first use.
func For[T any]() (*Codec[T], error) {
	c, err := codecOf(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return &Codec[T]{c: c}, nil
}

// Encode writes v to e.
func (c *Codec[T]) Encode(e *ende.Encoder, v T) error {
	return c.c.enc(e, reflect.ValueOf(&v).Elem())
}

// Decode reads a value from d.
func (c *Codec[T]) Decode(d *ende.Decoder) (T, error) {
	var v T
	err := c.c.dec(d, reflect.ValueOf(&v).Elem())
	return v, err
}

// codecOf returns the cached codec for t, building and caching it if absent.
func codecOf(t reflect.Type) (*codecFunc, error) {
	if c, ok := codecCache.Load(t); ok {
		return c, nil
	}
	c, err := build(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	codecCache.Store(t, c)
	return c, nil
}

// build constructs the codec for t. seen holds the types currently being
// built; hitting one again produces a codec that resolves through the cache
// at run time, which breaks recursive types like linked nodes.
func build(t reflect.Type, seen map[reflect.Type]bool) (*codecFunc, error) {
	if seen[t] {
		return &codecFunc{
			enc: func(e *ende.Encoder, v reflect.Value) error {
				c, err := codecOf(t)
				if err != nil {
					return err
				}
				return c.enc(e, v)
			},
			dec: func(d *ende.Decoder, v reflect.Value) error {
				c, err := codecOf(t)
				if err != nil {
					return err
				}
				return c.dec(d, v)
			},
		}, nil
	}

	if c, ok := buildDelegate(t); ok {
		return c, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return &codecFunc{
			enc: func(e *ende.Encoder, v reflect.Value) error { return e.WriteBool(v.Bool()) },
			dec: func(d *ende.Decoder, v reflect.Value) error {
				b, err := d.ReadBool()
				if err != nil {
					return err
				}
				v.SetBool(b)
				return nil
			},
		}, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		width := widthOfSize(t.Size())
		return &codecFunc{
			enc: func(e *ende.Encoder, v reflect.Value) error {
				num := e.Context().Settings.Num
				return e.WriteIntWith(v.Int(), width, num.Encoding, num.Endianness)
			},
			dec: func(d *ende.Decoder, v reflect.Value) error {
				num := d.Context().Settings.Num
				i, err := d.ReadIntWith(width, num.Encoding, num.Endianness)
				if err != nil {
					return err
				}
				v.SetInt(i)
				return nil
			},
		}, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		width := widthOfSize(t.Size())
		return &codecFunc{
			enc: func(e *ende.Encoder, v reflect.Value) error {
				num := e.Context().Settings.Num
				return e.WriteUintWith(v.Uint(), width, num.Encoding, num.Endianness)
			},
			dec: func(d *ende.Decoder, v reflect.Value) error {
				num := d.Context().Settings.Num
				u, err := d.ReadUintWith(width, num.Encoding, num.Endianness)
				if err != nil {
					return err
				}
				v.SetUint(u)
				return nil
			},
		}, nil

	case reflect.Float32:
		return &codecFunc{
			enc: func(e *ende.Encoder, v reflect.Value) error { return e.WriteFloat32(float32(v.Float())) },
			dec: func(d *ende.Decoder, v reflect.Value) error {
				f, err := d.ReadFloat32()
				if err != nil {
					return err
				}
				v.SetFloat(float64(f))
				return nil
			},
		}, nil

	case reflect.Float64:
		return &codecFunc{
			enc: func(e *ende.Encoder, v reflect.Value) error { return e.WriteFloat64(v.Float()) },
			dec: func(d *ende.Decoder, v reflect.Value) error {
				f, err := d.ReadFloat64()
				if err != nil {
					return err
				}
				v.SetFloat(f)
				return nil
			},
		}, nil

	case reflect.String:
		return &codecFunc{
			enc: func(e *ende.Encoder, v reflect.Value) error { return e.WriteString(v.String()) },
			dec: func(d *ende.Decoder, v reflect.Value) error {
				s, err := d.ReadString()
				if err != nil {
					return err
				}
				v.SetString(s)
				return nil
			},
		}, nil

	case reflect.Pointer:
		return buildPointer(t, seen)

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return buildBytes(t), nil
		}
		return buildSlice(t, seen)

	case reflect.Array:
		return buildArray(t, seen)

	case reflect.Map:
		return buildMap(t, seen)

	case reflect.Struct:
		return buildStruct(t, seen)

	case reflect.Interface:
		return buildInterface(t), nil

	default:
		return nil, fmt.Errorf("derive: cannot build a codec for %v", t)
	}
}

// buildDelegate wires types with hand-written Encode and Decode methods.
func buildDelegate(t reflect.Type) (*codecFunc, bool) {
	ptr := reflect.PointerTo(t)
	selfEnc := t.Implements(encodableType)
	ptrEnc := ptr.Implements(encodableType)
	ptrDec := ptr.Implements(decodableType)
	if !(selfEnc || ptrEnc) || !ptrDec {
		return nil, false
	}
	return &codecFunc{
		enc: func(e *ende.Encoder, v reflect.Value) error {
			if selfEnc {
				return v.Interface().(ende.Encodable).Encode(e)
			}
			if !v.CanAddr() {
				nv := reflect.New(t)
				nv.Elem().Set(v)
				v = nv.Elem()
			}
			return v.Addr().Interface().(ende.Encodable).Encode(e)
		},
		dec: func(d *ende.Decoder, v reflect.Value) error {
			return v.Addr().Interface().(ende.Decodable).Decode(d)
		},
	}, true
}

func buildPointer(t reflect.Type, seen map[reflect.Type]bool) (*codecFunc, error) {
	seen[t] = true
	elem, err := build(t.Elem(), seen)
	delete(seen, t)
	if err != nil {
		return nil, err
	}
	return &codecFunc{
		enc: func(e *ende.Encoder, v reflect.Value) error {
			if err := e.WriteBool(!v.IsNil()); err != nil {
				return err
			}
			if v.IsNil() {
				return nil
			}
			return elem.enc(e, v.Elem())
		},
		dec: func(d *ende.Decoder, v reflect.Value) error {
			present, err := d.ReadBool()
			if err != nil {
				return err
			}
			if !present {
				v.SetZero()
				return nil
			}
			nv := reflect.New(t.Elem())
			if err := elem.dec(d, nv.Elem()); err != nil {
				return err
			}
			v.Set(nv)
			return nil
		},
	}, nil
}

// buildBytes is the []byte fast path: one size and one raw transfer, read
// back in bounded steps so a hostile length cannot force one huge allocation.
func buildBytes(t reflect.Type) *codecFunc {
	return &codecFunc{
		enc: func(e *ende.Encoder, v reflect.Value) error {
			if err := e.WriteSize(v.Len()); err != nil {
				return err
			}
			return e.WriteBytes(v.Bytes())
		},
		dec: func(d *ende.Decoder, v reflect.Value) error {
			n, err := d.ReadSize()
			if err != nil {
				return err
			}
			buff := make([]byte, 0, min(n, allocCap))
			for remaining := n; remaining > 0; {
				chunk := min(remaining, allocCap)
				start := len(buff)
				buff = append(buff, make([]byte, chunk)...)
				if err := d.ReadBytes(buff[start:]); err != nil {
					return err
				}
				remaining -= chunk
			}
			v.Set(reflect.ValueOf(buff).Convert(t))
			return nil
		},
	}
}

func buildSlice(t reflect.Type, seen map[reflect.Type]bool) (*codecFunc, error) {
	seen[t] = true
	elem, err := build(t.Elem(), seen)
	delete(seen, t)
	if err != nil {
		return nil, err
	}
	return &codecFunc{
		enc: func(e *ende.Encoder, v reflect.Value) error {
			leave, err := e.Context().Enter()
			if err != nil {
				return err
			}
			defer leave()
			if err := e.WriteSize(v.Len()); err != nil {
				return err
			}
			for i := 0; i < v.Len(); i++ {
				if err := elem.enc(e, v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		},
		dec: func(d *ende.Decoder, v reflect.Value) error {
			leave, err := d.Context().Enter()
			if err != nil {
				return err
			}
			defer leave()
			n, err := d.ReadSize()
			if err != nil {
				return err
			}
			s := reflect.MakeSlice(t, 0, min(n, allocCap))
			nv := reflect.New(t.Elem()).Elem()
			for i := 0; i < n; i++ {
				nv.SetZero()
				if err := elem.dec(d, nv); err != nil {
					return err
				}
				s = reflect.Append(s, nv)
			}
			v.Set(s)
			return nil
		},
	}, nil
}

// buildArray encodes arrays as their elements in order, with no size prefix;
// the length is part of the type.
func buildArray(t reflect.Type, seen map[reflect.Type]bool) (*codecFunc, error) {
	seen[t] = true
	elem, err := build(t.Elem(), seen)
	delete(seen, t)
	if err != nil {
		return nil, err
	}
	n := t.Len()
	return &codecFunc{
		enc: func(e *ende.Encoder, v reflect.Value) error {
			for i := 0; i < n; i++ {
				if err := elem.enc(e, v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		},
		dec: func(d *ende.Decoder, v reflect.Value) error {
			for i := 0; i < n; i++ {
				if err := elem.dec(d, v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

func buildMap(t reflect.Type, seen map[reflect.Type]bool) (*codecFunc, error) {
	seen[t] = true
	key, err := build(t.Key(), seen)
	if err != nil {
		delete(seen, t)
		return nil, err
	}
	value, err := build(t.Elem(), seen)
	delete(seen, t)
	if err != nil {
		return nil, err
	}
	return &codecFunc{
		enc: func(e *ende.Encoder, v reflect.Value) error {
			leave, err := e.Context().Enter()
			if err != nil {
				return err
			}
			defer leave()
			if err := e.WriteSize(v.Len()); err != nil {
				return err
			}
			iter := v.MapRange()
			for iter.Next() {
				if err := key.enc(e, iter.Key()); err != nil {
					return err
				}
				if err := value.enc(e, iter.Value()); err != nil {
					return err
				}
			}
			return nil
		},
		dec: func(d *ende.Decoder, v reflect.Value) error {
			leave, err := d.Context().Enter()
			if err != nil {
				return err
			}
			defer leave()
			n, err := d.ReadSize()
			if err != nil {
				return err
			}
			m := reflect.MakeMapWithSize(t, min(n, allocCap))
			kv := reflect.New(t.Key()).Elem()
			vv := reflect.New(t.Elem()).Elem()
			for i := 0; i < n; i++ {
				kv.SetZero()
				vv.SetZero()
				if err := key.dec(d, kv); err != nil {
					return err
				}
				if err := value.dec(d, vv); err != nil {
					return err
				}
				m.SetMapIndex(kv, vv)
			}
			v.Set(m)
			return nil
		},
	}, nil
}

type fieldCodec struct {
	index  int
	name   string
	codec  *codecFunc
	modify func(ende.Settings) ende.Settings
}

func buildStruct(t reflect.Type, seen map[reflect.Type]bool) (*codecFunc, error) {
	seen[t] = true
	defer delete(seen, t)

	var fields []fieldCodec
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, err := parseTag(f.Tag.Get("ende"))
		if err != nil {
			return nil, fmt.Errorf("%v.%s: %w", t, f.Name, err)
		}
		if tag.skip {
			continue
		}
		c, err := build(f.Type, seen)
		if err != nil {
			return nil, fmt.Errorf("%v.%s: %w", t, f.Name, err)
		}
		fields = append(fields, fieldCodec{
			index:  i,
			name:   f.Name,
			codec:  c,
			modify: tag.modify,
		})
	}

	encodeField := func(e *ende.Encoder, f *fieldCodec, v reflect.Value) error {
		pop := e.Context().PushPath(f.name)
		defer pop()
		if f.modify != nil {
			restore := e.Context().WithSettings(f.modify(e.Context().Settings))
			defer restore()
		}
		return f.codec.enc(e, v.Field(f.index))
	}
	decodeField := func(d *ende.Decoder, f *fieldCodec, v reflect.Value) error {
		pop := d.Context().PushPath(f.name)
		defer pop()
		if f.modify != nil {
			restore := d.Context().WithSettings(f.modify(d.Context().Settings))
			defer restore()
		}
		return f.codec.dec(d, v.Field(f.index))
	}

	return &codecFunc{
		enc: func(e *ende.Encoder, v reflect.Value) error {
			leave, err := e.Context().Enter()
			if err != nil {
				return err
			}
			defer leave()
			for i := range fields {
				if err := encodeField(e, &fields[i], v); err != nil {
					return err
				}
			}
			return nil
		},
		dec: func(d *ende.Decoder, v reflect.Value) error {
			leave, err := d.Context().Enter()
			if err != nil {
				return err
			}
			defer leave()
			for i := range fields {
				if err := decodeField(d, &fields[i], v); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

// buildInterface defers to the registry for the interface type, resolved at
// run time so registration order and codec construction order don't matter.
func buildInterface(t reflect.Type) *codecFunc {
	return &codecFunc{
		enc: func(e *ende.Encoder, v reflect.Value) error {
			r, ok := registries.Load(t)
			if !ok {
				return fmt.Errorf("derive: no registry for interface %v", t)
			}
			return r.encode(e, v)
		},
		dec: func(d *ende.Decoder, v reflect.Value) error {
			r, ok := registries.Load(t)
			if !ok {
				return fmt.Errorf("derive: no registry for interface %v", t)
			}
			return r.decode(d, v)
		},
	}
}

// widthOfSize maps a type's byte size to its bit-width.
func widthOfSize(size uintptr) ende.BitWidth {
	switch size {
	case 1:
		return ende.Bit8
	case 2:
		return ende.Bit16
	case 4:
		return ende.Bit32
	default:
		return ende.Bit64
	}
}
