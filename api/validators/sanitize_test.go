package validators

import "testing"

func TestSanitizeStringCountsRunes(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  etiqueta  ", 0, "etiqueta"},
		{"devolução", 8, "devoluçã"},
		{"ação", 10, "ação"},
		{"abc def", 4, "abc"},
	}
	for _, c := range cases {
		if got := SanitizeString(c.in, c.max); got != c.want {
			t.Fatalf("SanitizeString(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
	}
}
