package common

import (
	"io"
)

// maxZeroWrites bounds how often a write may make no progress before giving up
const maxZeroWrites = 8

// WriteFull writes all of p to w. A single Write may transmit fewer bytes than
// requested, so WriteFull keeps advancing an offset until the whole buffer is written
// or w reports an error. Writes that make no progress without an error are retried a
// few times and then reported as io.ErrShortWrite.
func WriteFull(w io.Writer, p []byte) error {
	zeroWrites := 0
	for off := 0; off < len(p); {
		n, err := w.Write(p[off:])
		if n < 0 || n > len(p)-off {
			return io.ErrShortWrite
		}
		off += n
		if err != nil {
			return err
		}

		if n == 0 {
			zeroWrites++
			if zeroWrites >= maxZeroWrites {
				return io.ErrShortWrite
			}
			continue
		}
		zeroWrites = 0
	}
	return nil
}
