package derive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bohdloss/ende"
)

// Struct fields opt into per-field format overrides through the "ende" tag.
// The tag is a comma-separated list of options, most of them scoped to one of
// the four representations:
//
//	type Packet struct {
//		internal int    `ende:"-"`                       // skipped
//		Seq      uint64 `ende:"num:big"`                 // byte order
//		Flags    uint32 `ende:"num:leb128"`              // var-int
//		Name     string `ende:"size:bit16,string:utf16"` // combined
//		Motd     string `ende:"string:nullterm"`
//		Body     []byte `ende:"size:max=65536"`
//	}
//
// Scopes are num, size, variant and string. Within a scope: big and little
// set the byte order; fixed, leb128, zigzag and wasteful set the numerical
// encoding; bit8 through bit128 set the width (size and variant only);
// max=N sets the size ceiling (size only); utf8, utf16, utf32, nullterm and
// lenprefix apply to string. The bare options strict and nostrict toggle
// content validation. Overrides apply to the field and everything beneath it,
// with the innermost override winning.
type fieldTag struct {
	skip   bool
	modify func(ende.Settings) ende.Settings
}

// parseTag interprets one "ende" struct tag.
func parseTag(tag string) (fieldTag, error) {
	var ft fieldTag
	if tag == "" {
		return ft, nil
	}
	if tag == "-" {
		ft.skip = true
		return ft, nil
	}

	var mods []func(ende.Settings) ende.Settings
	for _, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		mod, err := parseOption(opt)
		if err != nil {
			return ft, err
		}
		mods = append(mods, mod)
	}
	if len(mods) > 0 {
		ft.modify = func(s ende.Settings) ende.Settings {
			for _, mod := range mods {
				s = mod(s)
			}
			return s
		}
	}
	return ft, nil
}

func parseOption(opt string) (func(ende.Settings) ende.Settings, error) {
	switch opt {
	case "strict":
		return func(s ende.Settings) ende.Settings { return s.WithStrict(true) }, nil
	case "nostrict":
		return func(s ende.Settings) ende.Settings { return s.WithStrict(false) }, nil
	}

	scope, rest, ok := strings.Cut(opt, ":")
	if !ok {
		return nil, fmt.Errorf("derive: tag option %q has no scope", opt)
	}
	switch scope {
	case "num":
		return parseNumOption(rest)
	case "size":
		return parseSizeOption(rest)
	case "variant":
		return parseVariantOption(rest)
	case "string":
		return parseStringOption(rest)
	default:
		return nil, fmt.Errorf("derive: unknown tag scope %q", scope)
	}
}

func parseNumOption(opt string) (func(ende.Settings) ende.Settings, error) {
	if e, ok := endiannessOf(opt); ok {
		return func(s ende.Settings) ende.Settings { s.Num.Endianness = e; return s }, nil
	}
	if n, ok := numEncodingOf(opt); ok {
		return func(s ende.Settings) ende.Settings { s.Num.Encoding = n; return s }, nil
	}
	return nil, fmt.Errorf("derive: unknown num option %q", opt)
}

func parseSizeOption(opt string) (func(ende.Settings) ende.Settings, error) {
	if e, ok := endiannessOf(opt); ok {
		return func(s ende.Settings) ende.Settings { s.Size.Endianness = e; return s }, nil
	}
	if n, ok := numEncodingOf(opt); ok {
		return func(s ende.Settings) ende.Settings { s.Size.Encoding = n; return s }, nil
	}
	if w, ok := widthOf(opt); ok {
		return func(s ende.Settings) ende.Settings { s.Size.Width = w; return s }, nil
	}
	if rest, ok := strings.CutPrefix(opt, "max="); ok {
		max, err := strconv.Atoi(rest)
		if err != nil || max < 0 {
			return nil, fmt.Errorf("derive: bad size ceiling %q", rest)
		}
		return func(s ende.Settings) ende.Settings { s.Size.MaxSize = max; return s }, nil
	}
	return nil, fmt.Errorf("derive: unknown size option %q", opt)
}

func parseVariantOption(opt string) (func(ende.Settings) ende.Settings, error) {
	if e, ok := endiannessOf(opt); ok {
		return func(s ende.Settings) ende.Settings { s.Variant.Endianness = e; return s }, nil
	}
	if n, ok := numEncodingOf(opt); ok {
		return func(s ende.Settings) ende.Settings { s.Variant.Encoding = n; return s }, nil
	}
	if w, ok := widthOf(opt); ok {
		return func(s ende.Settings) ende.Settings { s.Variant.Width = w; return s }, nil
	}
	return nil, fmt.Errorf("derive: unknown variant option %q", opt)
}

func parseStringOption(opt string) (func(ende.Settings) ende.Settings, error) {
	if e, ok := endiannessOf(opt); ok {
		return func(s ende.Settings) ende.Settings { s.String.Endianness = e; return s }, nil
	}
	switch opt {
	case "utf8":
		return func(s ende.Settings) ende.Settings { s.String.Encoding = ende.UTF8; return s }, nil
	case "utf16":
		return func(s ende.Settings) ende.Settings { s.String.Encoding = ende.UTF16; return s }, nil
	case "utf32":
		return func(s ende.Settings) ende.Settings { s.String.Encoding = ende.UTF32; return s }, nil
	case "nullterm":
		return func(s ende.Settings) ende.Settings { s.String.Termination = ende.NullTerminated; return s }, nil
	case "lenprefix":
		return func(s ende.Settings) ende.Settings { s.String.Termination = ende.LengthPrefixed; return s }, nil
	default:
		return nil, fmt.Errorf("derive: unknown string option %q", opt)
	}
}

func endiannessOf(opt string) (ende.Endianness, bool) {
	switch opt {
	case "big":
		return ende.BigEndian, true
	case "little":
		return ende.LittleEndian, true
	default:
		return 0, false
	}
}

func numEncodingOf(opt string) (ende.NumEncoding, bool) {
	switch opt {
	case "fixed":
		return ende.Fixed, true
	case "leb128":
		return ende.Leb128, true
	case "zigzag":
		return ende.ProtobufZigzag, true
	case "wasteful":
		return ende.ProtobufWasteful, true
	default:
		return 0, false
	}
}

func widthOf(opt string) (ende.BitWidth, bool) {
	switch opt {
	case "bit8":
		return ende.Bit8, true
	case "bit16":
		return ende.Bit16, true
	case "bit32":
		return ende.Bit32, true
	case "bit64":
		return ende.Bit64, true
	case "bit128":
		return ende.Bit128, true
	default:
		return 0, false
	}
}
