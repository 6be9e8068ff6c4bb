package buffer

import "errors"

var errBufferUnderflow = errors.New("buffer: not enough bytes remain")
