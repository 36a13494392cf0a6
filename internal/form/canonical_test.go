package form

import "testing"

func TestCanonicalValue(t *testing.T) {
	equal := []struct {
		name string
		a, b string
	}{
		{"object key order", `{"a":1,"b":2}`, `{"b":2,"a":1}`},
		{"nested key order", `{"x":{"k":"v","j":"w"}}`, `{"x":{"j":"w","k":"v"}}`},
		{"whitespace", `{ "a" : 1 }`, `{"a":1}`},
		{"arrays keep order", `[1,2,3]`, `[ 1, 2, 3 ]`},
		{"plain strings", `hello`, `hello`},
		{"booleans", `true`, `true`},
	}
	for _, tc := range equal {
		if canonicalValue(tc.a) != canonicalValue(tc.b) {
			t.Errorf("%s: %q and %q should canonicalize equal", tc.name, tc.a, tc.b)
		}
	}

	distinct := []struct {
		name string
		a, b string
	}{
		{"array order matters", `[1,2]`, `[2,1]`},
		{"value change", `{"a":1}`, `{"a":2}`},
		{"string vs json string", `x`, `"x"`},
		{"malformed compared raw", `{broken`, `{also broken`},
		{"trailing garbage stays raw", `1 spade`, `1 shovel`},
	}
	for _, tc := range distinct {
		if canonicalValue(tc.a) == canonicalValue(tc.b) {
			t.Errorf("%s: %q and %q should canonicalize distinct", tc.name, tc.a, tc.b)
		}
	}
}

func TestCanonicalValueMalformedIsRaw(t *testing.T) {
	raw := `{"unterminated": `
	if canonicalValue(raw) != raw {
		t.Fatalf("malformed value must compare as its raw form")
	}
}

func TestCanonicalValueNumbersKeepNotation(t *testing.T) {
	if canonicalValue(`{"n":1.50}`) != `{"n":1.50}` {
		t.Fatalf("number notation must survive canonicalization, got %q", canonicalValue(`{"n":1.50}`))
	}
}
