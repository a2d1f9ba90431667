package broker

import (
	"errors"
	"fmt"
)

// ErrPermanent marks a handler failure that retrying cannot fix:
// malformed payloads, schema drift. The consumer dead-letters the
// record and acknowledges it instead of blocking the partition.
var ErrPermanent = errors.New("permanent handler failure")

// Permanent wraps err so the consumer routes the record to the
// dead-letter stream.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
