package endio

import (
	"io"
	"os"
)

// Warnings is where warnings are sent to.
// The engine keeps operating with e.g. incorrectly implemented io.Readers or
// io.Writers where it can, but it won't silently put up with things that seem
// worrying. Assign io.Discard to silence it.
var Warnings io.Writer = os.Stderr
