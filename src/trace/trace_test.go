package trace

import (
	"errors"
	"strings"
	"testing"
)

func collect(t *testing.T, input string, timeBegin int64) ([]Event, error) {
	t.Helper()
	rd := NewReader(strings.NewReader(input), "test", timeBegin)
	var evs []Event
	for rd.Scan() {
		evs = append(evs, rd.Event())
	}
	return evs, rd.Err()
}

func TestReaderBasicTrace(t *testing.T) {
	in := "# queue: droptail\n" +
		"# base timestamp: 1000\n" +
		"1000 # 1500\n" +
		"1002 + 1500\n" +
		"1010 - 1500 8.0\n"
	evs, err := collect(t, in, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("expected 3 events got %d", len(evs))
	}
	want := []Event{
		{Timestamp: 0, Kind: Capacity, Bytes: 1500},
		{Timestamp: 2, Kind: Arrival, Bytes: 1500},
		{Timestamp: 10, Kind: Departure, Bytes: 1500, DelayMs: 8.0},
	}
	for i, w := range want {
		if evs[i] != w {
			t.Fatalf("event %d: got %+v want %+v", i, evs[i], w)
		}
	}
}

func TestReaderBaseCorrection(t *testing.T) {
	in := "# base timestamp: 5000\n5250 + 100\n"
	evs, err := collect(t, in, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(evs) != 1 || evs[0].Timestamp != 250 {
		t.Fatalf("corrected timestamp wrong: %+v", evs)
	}
}

func TestReaderNoTrailingNewline(t *testing.T) {
	in := "# base timestamp: 0\n7 + 64"
	evs, err := collect(t, in, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(evs) != 1 || evs[0].Timestamp != 7 || evs[0].Bytes != 64 {
		t.Fatalf("final unterminated line lost: %+v", evs)
	}
}

func TestReaderCRLF(t *testing.T) {
	in := "# base timestamp: 0\r\n3 + 1500\r\n"
	evs, err := collect(t, in, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(evs) != 1 || evs[0].Bytes != 1500 {
		t.Fatalf("crlf line mishandled: %+v", evs)
	}
}

func TestReaderTimeBeginFilter(t *testing.T) {
	in := "# base timestamp: 0\n" +
		"10 + 100\n" +
		"20 + 100\n" +
		"30 - 100 5.0\n"
	evs, err := collect(t, in, 20)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events after filter got %d", len(evs))
	}
	if evs[0].Timestamp != 20 || evs[1].Timestamp != 30 {
		t.Fatalf("wrong events retained: %+v", evs)
	}
	rd := NewReader(strings.NewReader(in), "test", 20)
	for rd.Scan() {
	}
	if rd.Discarded() != 1 {
		t.Fatalf("discarded count = %d want 1", rd.Discarded())
	}
}

// A departure that fails validation must abort even when the time_begin
// filter would have dropped it anyway.
func TestReaderValidatesBeforeFilter(t *testing.T) {
	in := "# base timestamp: 1000\n" +
		"1040 - 1500 50.0\n" +
		"9999 + 100\n"
	_, err := collect(t, in, 5000)
	if !errors.Is(err, ErrAcausalDelay) {
		t.Fatalf("expected acausal delay error, got %v", err)
	}
}

func TestReaderFatalLines(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"empty input", "", ErrMissingBase},
		{"no directive", "10 + 100\n", ErrMissingBase},
		{"comments only", "# hello\n# world\n", ErrMissingBase},
		{"duplicate directive", "# base timestamp: 1\n# base timestamp: 2\n", ErrDuplicateBase},
		{"bad base value", "# base timestamp: xyz\n", ErrMalformedLine},
		{"bad timestamp", "# base timestamp: 0\nabc + 100\n", ErrMalformedLine},
		{"negative timestamp", "# base timestamp: 0\n-5 + 100\n", ErrMalformedLine},
		{"unknown kind", "# base timestamp: 0\n10 * 100\n", ErrMalformedLine},
		{"arrival extra field", "# base timestamp: 0\n10 + 100 7\n", ErrMalformedLine},
		{"capacity extra field", "# base timestamp: 0\n10 # 100 7\n", ErrMalformedLine},
		{"departure missing delay", "# base timestamp: 0\n10 - 100\n", ErrMalformedLine},
		{"departure non-numeric delay", "# base timestamp: 0\n10 - 100 fast\n", ErrMalformedLine},
		{"departure negative delay", "# base timestamp: 0\n10 - 100 -2.5\n", ErrMalformedLine},
		{"bad byte count", "# base timestamp: 0\n10 + 1.5e3\n", ErrMalformedLine},
		{"blank line", "# base timestamp: 0\n\n10 + 100\n", ErrMalformedLine},
		{"acausal departure", "# base timestamp: 1000\n1040 - 1500 50.0\n", ErrAcausalDelay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := collect(t, tc.input, 0)
			if !errors.Is(err, tc.want) {
				t.Fatalf("input %q: got err %v want %v", tc.input, err, tc.want)
			}
		})
	}
}

func TestReaderCommentLinesSkipped(t *testing.T) {
	in := "# base timestamp: 0\n" +
		"# queue occupancy follows\n" +
		"5 + 100\n" +
		"#another comment\n" +
		"6 - 100 1.0\n"
	evs, err := collect(t, in, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events got %d", len(evs))
	}
}

func TestReaderDelayExactlyCausal(t *testing.T) {
	// delay equal to the corrected timestamp originates at t=0, which is allowed
	in := "# base timestamp: 1000\n1050 - 1500 50.0\n"
	evs, err := collect(t, in, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(evs) != 1 || evs[0].DelayMs != 50.0 {
		t.Fatalf("boundary departure rejected: %+v err=%v", evs, err)
	}
}

func TestReaderBaseAccessor(t *testing.T) {
	rd := NewReader(strings.NewReader("# base timestamp: 42\n50 + 1\n"), "test", 0)
	if _, ok := rd.Base(); ok {
		t.Fatalf("base reported before any line was scanned")
	}
	for rd.Scan() {
	}
	if err := rd.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	b, ok := rd.Base()
	if !ok || b != 42 {
		t.Fatalf("base = %d,%v want 42,true", b, ok)
	}
}

func TestReaderStopsAfterError(t *testing.T) {
	rd := NewReader(strings.NewReader("# base timestamp: 0\nbogus line here\n1 + 1\n"), "test", 0)
	for rd.Scan() {
		t.Fatalf("unexpected event %+v", rd.Event())
	}
	if rd.Err() == nil {
		t.Fatal("expected error")
	}
	if rd.Scan() {
		t.Fatal("Scan returned true after error")
	}
}
