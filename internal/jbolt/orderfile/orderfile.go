// Package orderfile implements the line-based order-file codec: the
// stable external contract a dump run writes and a load run reads back.
// The read side performs a two-pass load — a sizing pass followed by an
// interning pass — the same read-header-then-read-body shape wazevo's
// engine_cache.go uses for its binary module cache, adapted here to a
// line-oriented text format.
package orderfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hfsort"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
)

// MaxLineBytes is the hard per-line cap: lines longer than 8192 bytes are
// rejected.
const MaxLineBytes = 8192

// Stats is the result of the sizing pass: a method count and a size
// total, padded to segmentGrain, used to size the reserved hot segment
// before the interning pass runs.
type Stats struct {
	MethodCount int
	ClusterCount int
	// TotalSizeBytes is the sum of every method's declared size, rounded up
	// to a multiple of the segment grain the caller supplies.
	TotalSizeBytes int64
}

// Entry mirrors hfsort.Entry: either a method line or a cluster-boundary
// marker, as read back from an order file.
type Entry struct {
	Sentinel bool
	Key      methodkey.MethodKey
	Size     int32
}

// ParseError reports a malformed order-file line together with its
// 1-based line number; parsing a malformed order line is always a fatal
// startup error.
type ParseError struct {
	Line   int
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("orderfile: line %d: %s", e.Line, e.Detail)
}

// Scan performs pass 1 of the loader: count methods and clusters and sum
// sizes (rounded up to segmentGrain) without interning any symbols, so
// the caller can size the reserved segment before paying for pass 2.
func Scan(r io.Reader, segmentGrain int64) (Stats, error) {
	var st Stats
	lineNo := 0
	sc := newLineScanner(r)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == "C":
			st.ClusterCount++
		case strings.HasPrefix(line, "M "):
			size, _, _, _, err := parseMethodLineKey(line)
			if err != nil {
				return Stats{}, &ParseError{Line: lineNo, Detail: err.Error()}
			}
			st.MethodCount++
			st.TotalSizeBytes += padUp(int64(size), segmentGrain)
		default:
			return Stats{}, &ParseError{Line: lineNo, Detail: fmt.Sprintf("unknown line prefix %q", firstField(line))}
		}
	}
	if err := sc.Err(); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Load performs pass 2 of the loader: intern every method's MethodKey
// into interner (reference-counted) and return the full ordered Entry
// list, including sentinels.
func Load(r io.Reader, interner *methodkey.Interner) ([]Entry, error) {
	var out []Entry
	seen := make(map[methodkey.MethodKey]struct{})
	lineNo := 0
	sc := newLineScanner(r)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == "C":
			out = append(out, Entry{Sentinel: true})
		case strings.HasPrefix(line, "M "):
			size, class, method, sig, err := parseMethodLineKey(line)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Detail: err.Error()}
			}
			key := methodkey.MethodKey{Class: class, Method: method, Signature: sig}
			if _, dup := seen[key]; dup {
				return nil, &ParseError{Line: lineNo, Detail: fmt.Sprintf("duplicate method key %s.%s%s", class, method, sig)}
			}
			seen[key] = struct{}{}
			if interner != nil {
				interner.Intern(key)
			}
			out = append(out, Entry{Key: key, Size: size})
		default:
			return nil, &ParseError{Line: lineNo, Detail: fmt.Sprintf("unknown line prefix %q", firstField(line))}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Write emits entries as one "M" line per method in order, "C" lines
// separating clusters, and a leading "C" for the leading sentinel — the
// inverse of Load, so writing the entries Load read from Write's output
// reproduces that output byte for byte. Entry.Density is not written.
func Write(w io.Writer, entries []hfsort.Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		var line string
		if e.Sentinel {
			line = "C\n"
		} else {
			line = fmt.Sprintf("M %d %s %s %s\n", e.Size, e.Key.Class, e.Key.Method, e.Key.Signature)
		}
		if len(line) > MaxLineBytes {
			return fmt.Errorf("orderfile: generated line exceeds %d bytes for method %s.%s", MaxLineBytes, e.Key.Class, e.Key.Method)
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func padUp(n, grain int64) int64 {
	if grain <= 0 {
		return n
	}
	if rem := n % grain; rem != 0 {
		return n + (grain - rem)
	}
	return n
}

func firstField(line string) string {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
}

func parseMethodLineKey(line string) (size int32, class, method, sig string, err error) {
	fields := strings.SplitN(line, " ", 5)
	if len(fields) != 5 || fields[0] != "M" {
		return 0, "", "", "", fmt.Errorf("malformed method line: %q", line)
	}
	n, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return 0, "", "", "", fmt.Errorf("malformed method size %q: %w", fields[1], err)
	}
	return int32(n), fields[2], fields[3], fields[4], nil
}

// newLineScanner builds a bufio.Scanner enforcing MaxLineBytes.
func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, MaxLineBytes), MaxLineBytes)
	sc.Split(func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			return i + 1, bytes.TrimRight(data[:i], "\r"), nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	})
	return sc
}
