package util

import "testing"

func TestCleanFieldRemovesNulAndControls(t *testing.T) {
	cases := map[string]string{
		"ab\x00cd\x01\x02":            "abcd",
		"  Atopic \t dermatitis\n":    "Atopic dermatitis",
		"":                            "",
		"\x00":                        "",
		"Basal cell\r\ncarcinoma\x7f": "Basal cell carcinoma",
	}
	for in, want := range cases {
		if got := CleanField(in); got != want {
			t.Fatalf("CleanField(%q) = %q, want %q", in, got, want)
		}
	}
}
