package derive

import (
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/bohdloss/ende"
)

// registries maps interface types to their variant registries. Populated at
// registration time, read by built codecs.
var registries = xsync.NewMap[reflect.Type, *Registry]()

// Registry maps the concrete types that may appear behind an interface to
// explicit wire discriminants. Discriminants are part of the format; choose
// them once and never renumber.
//
// Register all variants during program initialization, before any codec for
// the interface runs. Registration is not safe to interleave with encoding.
type Registry struct {
	iface  reflect.Type
	byType map[reflect.Type]uint64
	byDisc map[uint64]reflect.Type
}

// NewRegistry creates the variant registry for the interface type I and makes
// it visible to codecs built for fields of that type.
func NewRegistry[I any]() *Registry {
	iface := reflect.TypeOf((*I)(nil)).Elem()
	if iface.Kind() != reflect.Interface {
		panic(fmt.Sprintf("derive: NewRegistry of non-interface type %v", iface))
	}
	r := &Registry{
		iface:  iface,
		byType: make(map[reflect.Type]uint64),
		byDisc: make(map[uint64]reflect.Type),
	}
	registries.Store(iface, r)
	return r
}

// Register binds a discriminant to the concrete type of prototype.
func (r *Registry) Register(discriminant uint64, prototype any) error {
	t := reflect.TypeOf(prototype)
	if t == nil || !t.Implements(r.iface) {
		return fmt.Errorf("derive: %v does not implement %v", t, r.iface)
	}
	if prev, ok := r.byDisc[discriminant]; ok {
		return fmt.Errorf("derive: discriminant %d already registered to %v", discriminant, prev)
	}
	if prev, ok := r.byType[t]; ok {
		return fmt.Errorf("derive: %v already registered as discriminant %d", t, prev)
	}
	r.byDisc[discriminant] = t
	r.byType[t] = discriminant
	return nil
}

// MustRegister is Register, panicking on error. Meant for package init.
func (r *Registry) MustRegister(discriminant uint64, prototype any) *Registry {
	if err := r.Register(discriminant, prototype); err != nil {
		panic(err)
	}
	return r
}

// encode writes the discriminant of v's concrete type followed by its value.
func (r *Registry) encode(e *ende.Encoder, v reflect.Value) error {
	if v.IsNil() {
		return fmt.Errorf("%w: nil %v", ende.ErrInvalidData, r.iface)
	}
	concrete := v.Elem()
	disc, ok := r.byType[concrete.Type()]
	if !ok {
		return fmt.Errorf("%w: %v is not registered for %v", ende.ErrUnknownVariant, concrete.Type(), r.iface)
	}
	c, err := codecOf(concrete.Type())
	if err != nil {
		return err
	}
	if err := e.WriteUvariant(disc); err != nil {
		return err
	}
	return c.enc(e, concrete)
}

// decode reads a discriminant, instantiates the registered type and decodes
// into it.
func (r *Registry) decode(d *ende.Decoder, v reflect.Value) error {
	disc, err := d.ReadUvariant()
	if err != nil {
		return err
	}
	t, ok := r.byDisc[disc]
	if !ok {
		return fmt.Errorf("%w: discriminant %d of %v", ende.ErrUnknownVariant, disc, r.iface)
	}
	c, err := codecOf(t)
	if err != nil {
		return err
	}
	nv := reflect.New(t).Elem()
	if err := c.dec(d, nv); err != nil {
		return err
	}
	v.Set(nv)
	return nil
}
