package lifecycle

import "errors"

// ErrNoResetSupport is returned by Controller.Reset when the underlying
// server descriptor has no supported reset mechanism.
var ErrNoResetSupport = errors.New("server has no supported reset mechanism")
