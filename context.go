package ende

import "strings"

// DefaultMaxDepth is the recursion bound of a freshly created Context. Deep
// enough for any reasonable format, shallow enough that adversarial nesting
// fails long before the goroutine stack does.
const DefaultMaxDepth = 256

// Context is the mutable state carried through a recursive encode or decode
// call tree: the active Settings, a recursion-depth guard, and the structural
// path used for error reporting.
//
// A Context is owned exclusively by one top-level call. It is never shared
// across concurrent operations; independent operations use independent
// Contexts. No locking is performed.
//
// Nested calls may locally override the settings via WithSettings and must
// restore them on return; the guard functions returned by Enter, WithSettings
// and PushPath make that a defer:
//
//	leave, err := ctx.Enter()
//	if err != nil {
//		return err
//	}
//	defer leave()
type Context struct {
	// Settings is the active format configuration. Read it freely; change it
	// only through WithSettings so the previous value is restored.
	Settings Settings

	// MaxDepth bounds Enter. Zero means DefaultMaxDepth.
	MaxDepth int

	// User is arbitrary caller data available to Encode/Decode
	// implementations, e.g. cryptographic keys known at a higher level.
	User any

	depth int
	path  []string

	flatSize    int
	hasFlatSize bool

	flatBool    bool
	hasFlatBool bool

	flatVariant    uint64
	hasFlatVariant bool
}

// NewContext returns a Context with the given settings and default bounds.
func NewContext(settings Settings) *Context {
	return &Context{Settings: settings}
}

// Enter increments the recursion depth, returning a guard that decrements it.
// It fails with ErrDepthExceeded once the maximum is surpassed.
func (c *Context) Enter() (func(), error) {
	max := c.MaxDepth
	if max == 0 {
		max = DefaultMaxDepth
	}
	if c.depth >= max {
		return nil, newError(c, ErrDepthExceeded, "max depth %d", max)
	}
	c.depth++
	return func() { c.depth-- }, nil
}

// Depth returns the current recursion depth.
func (c *Context) Depth() int { return c.depth }

// WithSettings replaces the active settings, returning a guard that restores
// the previous value. The override is visible to every nested call made while
// the guard is live, whether or not those calls succeed.
func (c *Context) WithSettings(s Settings) func() {
	prev := c.Settings
	c.Settings = s
	return func() { c.Settings = prev }
}

// PushPath appends a structural label (field name, variant name, index) to
// the diagnostic path, returning a guard that removes it.
func (c *Context) PushPath(label string) func() {
	c.path = append(c.path, label)
	return func() { c.path = c.path[:len(c.path)-1] }
}

// Path returns the current structural path in dotted form.
func (c *Context) Path() string {
	return strings.Join(c.path, ".")
}

// FlattenSize marks the next size as known from the surrounding format: the
// encoder checks it against the actual length but writes nothing, and the
// decoder returns it without reading. The mark is consumed by the next size
// operation.
func (c *Context) FlattenSize(n int) {
	c.flatSize = n
	c.hasFlatSize = true
}

// FlattenBool marks the next boolean as known from the surrounding format.
func (c *Context) FlattenBool(v bool) {
	c.flatBool = v
	c.hasFlatBool = true
}

// FlattenVariant marks the next discriminant as known from the surrounding
// format.
func (c *Context) FlattenVariant(v uint64) {
	c.flatVariant = v
	c.hasFlatVariant = true
}

func (c *Context) takeFlatSize() (int, bool) {
	if !c.hasFlatSize {
		return 0, false
	}
	c.hasFlatSize = false
	return c.flatSize, true
}

func (c *Context) takeFlatBool() (bool, bool) {
	if !c.hasFlatBool {
		return false, false
	}
	c.hasFlatBool = false
	return c.flatBool, true
}

func (c *Context) takeFlatVariant() (uint64, bool) {
	if !c.hasFlatVariant {
		return 0, false
	}
	c.hasFlatVariant = false
	return c.flatVariant, true
}
