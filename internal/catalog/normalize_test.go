package catalog

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "lowercase", title: "Hollow Knight", want: "hollow knight"},
		{name: "punctuation stripped", title: "hollow knight!", want: "hollow knight"},
		{name: "whitespace collapsed", title: "Dark Souls  III", want: "dark souls iii"},
		{name: "leading and trailing", title: "  Celeste  ", want: "celeste"},
		{name: "symbols", title: "NieR:Automata™", want: "nierautomata"},
		{name: "digits survive", title: "Portal 2", want: "portal 2"},
		{name: "unicode letters survive", title: "Pokémon", want: "pokémon"},
		{name: "empty", title: "", want: ""},
		{name: "symbols only", title: "!!!", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.title); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	titles := []string{"Hollow Knight!", "Dark Souls  III", "NieR:Automata™", "Portal 2"}
	for _, title := range titles {
		once := Normalize(title)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q vs %q", title, once, twice)
		}
	}
}

func TestNormalizeMatchesAcrossStores(t *testing.T) {
	t.Parallel()

	if Normalize("Hollow Knight") != Normalize("hollow knight!") {
		t.Fatal("expected variant titles to share one matching key")
	}
}
