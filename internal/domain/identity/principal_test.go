package identity

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
		want    string
	}{
		{"user:Alice@Example.com", false, "user:alice@example.com"},
		{"  user:alice@example.com  ", false, "user:alice@example.com"},
		{"group:team@example.com", false, "group:team@example.com"},
		{"serviceAccount:sa-1@my-project.iam.gserviceaccount.com", false, "serviceAccount:sa-1@my-project.iam.gserviceaccount.com"},
		{"jit-group:prod.sys.ops-oncall", false, "jit-group:prod.sys.ops-oncall"},
		{"class:authenticated-users", false, "class:authenticated-users"},
		{"class:iap-users", false, "class:iap-users"},
		{"alice@example.com", true, ""},
		{"user:", true, ""},
		{"bogus:x", true, ""},
		{"class:nope", true, ""},
		{"jit-group:onlytwo.parts", true, ""},
		{"serviceAccount:missing-at", true, ""},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got.String() != c.want {
			t.Errorf("Parse(%q) = %q, want %q", c.in, got.String(), c.want)
		}
	}
}

func TestParseUserRejectsBareEmail(t *testing.T) {
	if _, err := Parse("alice@example.com"); err == nil {
		t.Fatal("bare email must not parse as a principal id")
	}
}

func TestPrincipalIdEquality(t *testing.T) {
	a, _ := Parse("user:alice@example.com")
	b, _ := Parse("user:ALICE@EXAMPLE.COM")
	if !a.Equal(b) {
		t.Fatalf("expected case-insensitive equality: %v vs %v", a, b)
	}
	c := NewGroup("alice@example.com")
	if a.Equal(c) {
		t.Fatalf("user and group principals with same value must not be equal")
	}
}
