package textutil

import "testing"

func TestSingleLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "plain", want: "plain"},
		{in: "  Breaking\n\tnews  today ", want: "Breaking news today"},
	}
	for _, tt := range tests {
		if got := SingleLine(tt.in); got != tt.want {
			t.Errorf("SingleLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{in: "anything", max: 0, want: ""},
		{in: "short", max: 10, want: "short"},
		{in: "a long headline", max: 7, want: "a lo..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestCell(t *testing.T) {
	if got := Cell("Go 1.26\nreleased today", 11); got != "Go 1.26 ..." {
		t.Fatalf("Cell() = %q", got)
	}
}
