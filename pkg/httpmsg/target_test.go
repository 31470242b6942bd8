package httpmsg

import "testing"

func TestParseAbsoluteForm(t *testing.T) {
	cases := []struct {
		in   string
		want Target
	}{
		{"http://h/x", Target{Host: "h", Path: "/x"}},
		{"http://h:8080/x", Target{Host: "h", Port: "8080", Path: "/x"}},
		{"http://h", Target{Host: "h", Path: "/"}},
		{"http://h:80", Target{Host: "h", Port: "80", Path: "/"}},
	}
	for _, c := range cases {
		got, err := ParseAbsoluteForm(c.in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%q: got %+v want %+v", c.in, got, c.want)
		}
	}
}

func TestParseAbsoluteFormMalformed(t *testing.T) {
	cases := []string{"", "http://", "ftp://h/x", "h/x"}
	for _, c := range cases {
		if _, err := ParseAbsoluteForm(c); err != ErrMalformed {
			t.Fatalf("%q: expected ErrMalformed, got %v", c, err)
		}
	}
}

func TestParseAuthorityForm(t *testing.T) {
	got, err := ParseAuthorityForm("h:443")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Host != "h" || got.Port != "443" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseAuthorityFormMissingColon(t *testing.T) {
	if _, err := ParseAuthorityForm("host"); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
