package models

import "testing"

func TestMaskedPhone(t *testing.T) {
	cases := []struct {
		phone string
		want  string
	}{
		{"", ""},
		{"21", "21"},
		{"081234567821", "**********21"},
	}
	for _, tc := range cases {
		u := User{Phone: tc.phone}
		if got := u.MaskedPhone(); got != tc.want {
			t.Fatalf("MaskedPhone(%q) = %q, want %q", tc.phone, got, tc.want)
		}
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	var u User
	if err := u.SetPassword("s3cret"); err != nil {
		t.Fatalf("SetPassword err: %v", err)
	}
	if u.PasswordHash == "s3cret" {
		t.Fatal("password stored in plain text")
	}
	if !u.CheckPassword("s3cret") {
		t.Fatal("expected correct password to verify")
	}
	if u.CheckPassword("wrong") {
		t.Fatal("expected wrong password to fail")
	}
}
