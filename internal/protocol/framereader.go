package protocol

import (
	"io"
)

// ReadExact reads exactly n bytes from r.
// Stream sockets hand back whatever is buffered, so a single Read is never
// assumed to be enough; reads are repeated until n bytes have accumulated.
// Any read error, or a zero-length read (end of stream), fails the whole
// call and the partial data is dropped. r is never closed here.
func ReadExact(r io.Reader, n int, op string) ([]byte, error) {
	if n < 0 {
		return nil, newProtocolError(KindInvalidCounts, "negative read length %d", n)
	}
	buf := make([]byte, n)
	total := 0
	for total < n {
		read, err := r.Read(buf[total:])
		total += read
		if total == n {
			// a reader may return the last bytes together with io.EOF
			break
		}
		if err != nil {
			return nil, &ConnectionError{Op: op, Want: n, Got: total, Err: err}
		}
		if read == 0 {
			return nil, &ConnectionError{Op: op, Want: n, Got: total, Err: io.ErrUnexpectedEOF}
		}
	}
	return buf, nil
}
