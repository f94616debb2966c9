package util

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"11987654321", "5511987654321"},
		{"5511987654321", "5511987654321"},
		{"(11) 98765-4321", "5511987654321"},
		{"+55 11 98765-4321", "5511987654321"},
		{"1187654321", "551187654321"}, // 10-digit landline form
		{"", ""},
		{"abc", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in, "55"); got != tc.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhoneEquivalence(t *testing.T) {
	// local and international spellings of one number collapse to one key
	a := NormalizePhone("11987654321", "55")
	b := NormalizePhone("5511987654321", "55")
	if a != b {
		t.Fatalf("expected equal normalization, got %q vs %q", a, b)
	}
}

func TestNormalizePhoneDefaultCountryCode(t *testing.T) {
	if got := NormalizePhone("11987654321", ""); got != "5511987654321" {
		t.Fatalf("expected default country code applied, got %q", got)
	}
}

func TestNormalizePhoneOtherCountry(t *testing.T) {
	if got := NormalizePhone("2025550123", "1"); got != "12025550123" {
		t.Fatalf("got %q", got)
	}
	// already prefixed short numbers are left alone
	if got := NormalizePhone("12025550123", "1"); got != "12025550123" {
		t.Fatalf("got %q", got)
	}
}
