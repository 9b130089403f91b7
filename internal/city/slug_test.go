package city

import "testing"

func TestNormalizeSlug(t *testing.T) {
	cases := map[string]string{
		"São José dos Campos": "sao-jose-dos-campos",
		"  Santos  ":          "santos",
		"Ilhabela!!":          "ilhabela",
		"--":                  "",
		"guarujá/sp":          "guaruja-sp",
		"Conceição de Macabu": "conceicao-de-macabu",
	}
	for in, want := range cases {
		if got := NormalizeSlug(in); got != want {
			t.Errorf("NormalizeSlug(%q) = %q, want %q", in, got, want)
		}
		if got := NormalizeSlug(NormalizeSlug(in)); got != NormalizeSlug(in) {
			t.Errorf("NormalizeSlug not idempotent for %q", in)
		}
	}
}

func TestValidSlug(t *testing.T) {
	for _, s := range []string{"santos", "sao-paulo", "a1"} {
		if !ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = false", s)
		}
	}
	for _, s := range []string{"", "Santos", "sao paulo", "-x", "x--y"} {
		if ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = true", s)
		}
	}
}
