package language

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"en", "en", true},
		{"EN", "en", true},
		{" es ", "es", true},
		{"fra", "fr", true},
		{"fre", "fr", true},
		{"ger", "de", true},
		{"chi", "zh", true},
		{"english", "en", true},
		{"GERMAN", "de", true},
		{"Norwegian", "no", true},
		{"uk", "uk", true},
		{"en-US", "en", true},
		{"pt_BR", "pt", true},
		{"zh-Hant", "zh", true},
		{"original", "original", true},
		{"Original", "original", true},
		{"xy", "", false},
		{"la", "", false},
		{"xyz", "", false},
		{"xx-invalid", "", false},
		{"", "", false},
		{" ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := Normalize(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestToISO3(t *testing.T) {
	tests := map[string]string{
		"en":  "eng",
		"fr":  "fra",
		"zh":  "zho",
		"nl":  "nld",
		"xy":  "und",
		"":    "und",
		"spa": "spa",
	}
	for input, want := range tests {
		if got := ToISO3(input); got != want {
			t.Errorf("ToISO3(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"en":       "English",
		"ger":      "German",
		"original": "Original",
		"":         "Unknown",
		"xx":       "XX",
	}
	for input, want := range tests {
		if got := DisplayName(input); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeList(t *testing.T) {
	valid, invalid := NormalizeList([]string{"en", "eng", "Spanish", "original", "xx-invalid", "es"})
	if want := []string{"en", "es", "original"}; !reflect.DeepEqual(valid, want) {
		t.Fatalf("valid = %v, want %v", valid, want)
	}
	if want := []string{"xx-invalid"}; !reflect.DeepEqual(invalid, want) {
		t.Fatalf("invalid = %v, want %v", invalid, want)
	}
}

func TestSupportedExcludesSentinel(t *testing.T) {
	for _, code := range Supported() {
		if code == Original {
			t.Fatal("supported list should not contain the original sentinel")
		}
		if _, ok := Normalize(code); !ok {
			t.Fatalf("supported code %q does not normalize", code)
		}
	}
}
