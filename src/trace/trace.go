package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

// Kind discriminates the three event classes a link trace records.
type Kind int

const (
	Arrival   Kind = iota // packet entered the link queue
	Departure             // packet left the link, carries measured delay
	Capacity              // link capacity sample
)

func (k Kind) String() string {
	switch k {
	case Arrival:
		return "arrival"
	case Departure:
		return "departure"
	case Capacity:
		return "capacity"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one trace record with its timestamp corrected to the trace base.
type Event struct {
	Timestamp int64 // ms since base timestamp
	Kind      Kind
	Bytes     int64
	DelayMs   float64 // Departure only; 0 otherwise
}

// Fatal parse classes. Line context is wrapped around these so callers can
// both print the offending line and match with errors.Is.
var (
	ErrMissingBase   = errors.New("missing base timestamp directive")
	ErrDuplicateBase = errors.New("duplicate base timestamp directive")
	ErrMalformedLine = errors.New("malformed trace line")
	ErrAcausalDelay  = errors.New("departure delay precedes trace start")
)

// MaxLineBytes caps a single logical line; 1MB is far beyond any well-formed
// trace line.
const MaxLineBytes = 1 << 20

// Reader scans a link trace line by line, validating the grammar and emitting
// events whose timestamps are corrected to the base directive and at or after
// timeBegin. Usage mirrors bufio.Scanner: Scan / Event / Err. A Reader is
// single-pass; once Scan returns false it stays false.
type Reader struct {
	r         *bufio.Reader
	name      string
	timeBegin int64

	base     int64
	haveBase bool

	ev        Event
	err       error
	done      bool
	lineNo    int64
	kept      int64
	discarded int64
}

// NewReader wraps r for scanning. name labels the input in diagnostics and
// errors (a path, or "stdin"). Events with corrected timestamp below
// timeBegin are validated, then dropped.
func NewReader(r io.Reader, name string, timeBegin int64) *Reader {
	return &Reader{r: bufio.NewReader(r), name: name, timeBegin: timeBegin}
}

// Scan advances to the next retained event. It returns false at end of input
// or on the first error; Err distinguishes the two.
func (rd *Reader) Scan() bool {
	if rd.done {
		return false
	}
	for {
		line, eof, err := rd.readLine()
		if err != nil {
			rd.fail(err)
			return false
		}
		if line == "" && eof {
			if !rd.haveBase {
				rd.fail(fmt.Errorf("%s: %w", rd.name, ErrMissingBase))
				return false
			}
			rd.done = true
			glog.Infof("[trace] %s: %d lines, %d events kept, %d before t=%d discarded",
				rd.name, rd.lineNo, rd.kept, rd.discarded, rd.timeBegin)
			return false
		}
		rd.lineNo++
		ev, keep, err := rd.parseLine(line)
		if err != nil {
			rd.fail(err)
			return false
		}
		if keep {
			rd.kept++
			rd.ev = ev
			return true
		}
	}
}

// Event returns the event produced by the last successful Scan.
func (rd *Reader) Event() Event { return rd.ev }

// Err returns the first error encountered, or nil at clean end of input.
func (rd *Reader) Err() error { return rd.err }

// Base returns the base timestamp directive value once seen.
func (rd *Reader) Base() (int64, bool) { return rd.base, rd.haveBase }

// Lines returns how many non-empty lines have been consumed so far.
func (rd *Reader) Lines() int64 { return rd.lineNo }

// Discarded returns how many valid events fell before timeBegin.
func (rd *Reader) Discarded() int64 { return rd.discarded }

func (rd *Reader) fail(err error) {
	rd.err = err
	rd.done = true
}

// readLine accumulates one logical line without its terminator. eof reports
// that the underlying reader is exhausted; the final line may arrive together
// with eof when the input lacks a trailing newline.
func (rd *Reader) readLine() (line string, eof bool, err error) {
	var buf []byte
	for {
		part, rerr := rd.r.ReadBytes('\n')
		if len(part) > 0 {
			if len(buf)+len(part) > MaxLineBytes {
				return "", false, fmt.Errorf("%s: line %d exceeds %d bytes", rd.name, rd.lineNo+1, MaxLineBytes)
			}
			buf = append(buf, part...)
		}
		if rerr == nil {
			break
		}
		if errors.Is(rerr, io.EOF) {
			eof = true
			break
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		return "", false, fmt.Errorf("%s: read: %w", rd.name, rerr)
	}
	line = strings.TrimSuffix(string(buf), "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, eof, nil
}

// parseLine classifies one line as directive, comment, or event. keep is
// false for directives, comments, and events filtered out by timeBegin.
func (rd *Reader) parseLine(line string) (ev Event, keep bool, err error) {
	if strings.HasPrefix(line, "#") {
		return rd.parseDirective(line)
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ev, false, rd.badLine(line, "too few fields")
	}
	if !rd.haveBase {
		return ev, false, fmt.Errorf("%s: line %d: event before base timestamp directive: %w", rd.name, rd.lineNo, ErrMissingBase)
	}
	raw, perr := strconv.ParseUint(fields[0], 10, 63)
	if perr != nil {
		return ev, false, rd.badLine(line, "bad timestamp")
	}
	ev.Timestamp = int64(raw) - rd.base
	switch fields[1] {
	case "+":
		ev.Kind = Arrival
		if len(fields) != 3 {
			return ev, false, rd.badLine(line, "arrival wants 3 fields")
		}
	case "#":
		ev.Kind = Capacity
		if len(fields) != 3 {
			return ev, false, rd.badLine(line, "capacity sample wants 3 fields")
		}
	case "-":
		ev.Kind = Departure
		if len(fields) != 4 {
			return ev, false, rd.badLine(line, "departure wants 4 fields")
		}
	default:
		return ev, false, rd.badLine(line, "unknown event kind")
	}
	nb, perr := strconv.ParseUint(fields[2], 10, 63)
	if perr != nil {
		return ev, false, rd.badLine(line, "bad byte count")
	}
	ev.Bytes = int64(nb)
	if ev.Kind == Departure {
		d, perr := strconv.ParseFloat(fields[3], 64)
		if perr != nil || math.IsNaN(d) || math.IsInf(d, 0) {
			return ev, false, rd.badLine(line, "bad delay")
		}
		if d < 0 {
			return ev, false, rd.badLine(line, "negative delay")
		}
		if float64(ev.Timestamp)-d < 0 {
			return ev, false, fmt.Errorf("%s: line %d: %q: %w", rd.name, rd.lineNo, line, ErrAcausalDelay)
		}
		ev.DelayMs = d
	}
	if ev.Timestamp < rd.timeBegin {
		rd.discarded++
		return ev, false, nil
	}
	return ev, true, nil
}

func (rd *Reader) parseDirective(line string) (Event, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 4 && fields[1] == "base" && fields[2] == "timestamp:" {
		if rd.haveBase {
			return Event{}, false, fmt.Errorf("%s: line %d: %w", rd.name, rd.lineNo, ErrDuplicateBase)
		}
		b, err := strconv.ParseUint(fields[3], 10, 63)
		if err != nil {
			return Event{}, false, rd.badLine(line, "bad base timestamp")
		}
		rd.base = int64(b)
		rd.haveBase = true
		glog.V(2).Infof("[trace] %s: base timestamp %d", rd.name, rd.base)
		return Event{}, false, nil
	}
	// Any other leading-# line is a comment.
	return Event{}, false, nil
}

func (rd *Reader) badLine(line, reason string) error {
	return fmt.Errorf("%s: line %d: %q: %s: %w", rd.name, rd.lineNo, line, reason, ErrMalformedLine)
}
