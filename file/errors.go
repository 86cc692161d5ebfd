package file

import "fmt"

// outOfBoundsError reports a transfer that would read or write past
// the end of the backing store.
type outOfBoundsError struct {
	op     string
	offset int64
	length int
	size   int64
}

func (e *outOfBoundsError) Error() string {
	return fmt.Sprintf("file: %s at offset %d, length %d exceeds size %d", e.op, e.offset, e.length, e.size)
}

func errOutOfBounds(op string, offset int64, length int, size int64) error {
	return &outOfBoundsError{op: op, offset: offset, length: length, size: size}
}
