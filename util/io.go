package util

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// DefaultBufSize is the size of the pooled receive chunks.  The peer
// never sends more than a page plus framing at a time, so 4 KiB keeps
// a whole block's worth of chunks small.
const DefaultBufSize = 4 * 1024

// IsHarmless reports whether err is expected when a connection is torn
// down (EOF, use of a closed connection or pipe).
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// HexDump formats p as 16-byte rows, each prefixed with its address
// counted from base, followed by a printable-ASCII column.
//
//	$DF00: 48 45 4c 4c 4f 00 00 00 00 00 00 00 00 00 00 00  HELLO...........
func HexDump(base int, p []byte) string {
	var sb strings.Builder
	for off := 0; off < len(p); off += 16 {
		end := off + 16
		if end > len(p) {
			end = len(p)
		}
		row := p[off:end]

		fmt.Fprintf(&sb, "$%04X:", base+off)
		for i := 0; i < 16; i++ {
			if i < len(row) {
				fmt.Fprintf(&sb, " %02x", row[i])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteString("  ")
		for _, b := range row {
			if b >= 0x20 && b < 0x7f {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
