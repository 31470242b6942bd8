package httpmsg

import "testing"

func TestLineBufferTakeCRLFLine(t *testing.T) {
	var l LineBuffer
	l.Append([]byte("foo\r\nbar"))
	line, err := l.TakeCRLFLine()
	if err != nil {
		t.Fatalf("TakeCRLFLine: %v", err)
	}
	if line != "foo" {
		t.Fatalf("expected foo, got %q", line)
	}
	if string(l.Bytes()) != "bar" {
		t.Fatalf("expected bar remaining, got %q", l.Bytes())
	}
}

func TestLineBufferIncompleteCases(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("foo"),
		[]byte("foo\r"),
	}
	for _, c := range cases {
		var l LineBuffer
		l.Append(c)
		if _, err := l.TakeCRLFLine(); err != ErrIncomplete {
			t.Fatalf("case %q: expected ErrIncomplete, got %v", c, err)
		}
	}
}

func TestLineBufferMalformedCases(t *testing.T) {
	cases := [][]byte{
		[]byte("foo\n"),
		[]byte("foo\rbar"),
	}
	for _, c := range cases {
		var l LineBuffer
		l.Append(c)
		if _, err := l.TakeCRLFLine(); err != ErrMalformed {
			t.Fatalf("case %q: expected ErrMalformed, got %v", c, err)
		}
	}
}

func TestLineBufferTakeN(t *testing.T) {
	var l LineBuffer
	l.Append([]byte("abcdef"))
	got, err := l.TakeN(3)
	if err != nil {
		t.Fatalf("TakeN: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if _, err := l.TakeN(10); err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}
