package fingerprint

import (
	"encoding/json"
	"testing"
)

func TestComputeDeterministic(t *testing.T) {
	a, err := Compute("dfm.api.dfm.GreetMe", json.RawMessage(`{"name":"World"}`), "dfm", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute("dfm.api.dfm.GreetMe", json.RawMessage(`{"name": "World"}`), "dfm", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("whitespace must not change the fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("expected 256-bit hex digest, got %d chars", len(a))
	}
}

func TestComputeKeyOrderIndependent(t *testing.T) {
	a, _ := Compute("c", json.RawMessage(`{"x":1,"y":2}`), "dfm", nil)
	b, _ := Compute("c", json.RawMessage(`{"y":2,"x":1}`), "dfm", nil)
	if a != b {
		t.Error("key order must not change the fingerprint")
	}
}

func TestComputeNumericNormalization(t *testing.T) {
	a, _ := Compute("c", json.RawMessage(`{"n":1}`), "dfm", nil)
	b, _ := Compute("c", json.RawMessage(`{"n":1.0}`), "dfm", nil)
	c, _ := Compute("c", json.RawMessage(`{"n":1e0}`), "dfm", nil)
	if a != b || b != c {
		t.Error("1, 1.0 and 1e0 must fingerprint identically")
	}
}

func TestComputeDiffers(t *testing.T) {
	base, _ := Compute("c", json.RawMessage(`{"n":1}`), "dfm", nil)

	other, _ := Compute("c", json.RawMessage(`{"n":2}`), "dfm", nil)
	if base == other {
		t.Error("different params must differ")
	}
	other, _ = Compute("d", json.RawMessage(`{"n":1}`), "dfm", nil)
	if base == other {
		t.Error("different api_class must differ")
	}
	other, _ = Compute("c", json.RawMessage(`{"n":1}`), "esri", nil)
	if base == other {
		t.Error("different provider must differ")
	}
	other, _ = Compute("c", json.RawMessage(`{"n":1}`), "dfm", []string{"abc"})
	if base == other {
		t.Error("upstream fingerprints must feed the digest")
	}
}

func TestComputeUpstreamOrderMatters(t *testing.T) {
	a, _ := Compute("c", nil, "dfm", []string{"f1", "f2"})
	b, _ := Compute("c", nil, "dfm", []string{"f2", "f1"})
	if a == b {
		t.Error("upstream order is significant")
	}
}

func TestCanonicalizeRejectsNonFinite(t *testing.T) {
	// NaN cannot appear in valid JSON, but huge exponents overflow to +Inf
	if _, err := Canonicalize(json.RawMessage(`{"n":1e999}`)); err == nil {
		t.Error("expected error for non-finite number")
	}
}

func TestFieldBoundaryUnambiguous(t *testing.T) {
	// "ab"+"c" vs "a"+"bc" across the class/provider boundary
	a, _ := Compute("ab", nil, "c", nil)
	b, _ := Compute("a", nil, "bc", nil)
	if a == b {
		t.Error("field boundaries must be length-delimited")
	}
}
