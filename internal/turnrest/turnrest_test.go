package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestNewGenerator_Validation(t *testing.T) {
	cases := []struct {
		name string
		cfg  GeneratorConfig
	}{
		{"missing secret", GeneratorConfig{TTLSeconds: 10, UsernamePrefix: "p"}},
		{"zero ttl", GeneratorConfig{SharedSecret: "s", UsernamePrefix: "p"}},
		{"missing prefix", GeneratorConfig{SharedSecret: "s", TTLSeconds: 10}},
		{"colon in prefix", GeneratorConfig{SharedSecret: "s", TTLSeconds: 10, UsernamePrefix: "a:b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewGenerator(tc.cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestGenerate_CoturnCompatible(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0)
	g, err := NewGenerator(GeneratorConfig{
		SharedSecret:   "topsecret",
		TTLSeconds:     600,
		UsernamePrefix: "callrelay",
		Now:            func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	creds, err := g.Generate("sess1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if creds.ExpiryUnix != fixed.Unix()+600 {
		t.Fatalf("expiry=%d, want %d", creds.ExpiryUnix, fixed.Unix()+600)
	}
	wantUser := "1700000600:callrelay:sess1"
	if creds.Username != wantUser {
		t.Fatalf("username=%q, want %q", creds.Username, wantUser)
	}

	mac := hmac.New(sha1.New, []byte("topsecret"))
	mac.Write([]byte(wantUser))
	if want := base64.StdEncoding.EncodeToString(mac.Sum(nil)); creds.Credential != want {
		t.Fatalf("credential=%q, want %q", creds.Credential, want)
	}
}

func TestGenerate_RejectsColonSessionID(t *testing.T) {
	g, err := NewGenerator(GeneratorConfig{SharedSecret: "s", TTLSeconds: 1, UsernamePrefix: "p"})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if _, err := g.Generate("a:b"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := g.Generate(""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGenerateRandom_UniqueSessionIDs(t *testing.T) {
	g, err := NewGenerator(GeneratorConfig{SharedSecret: "s", TTLSeconds: 60, UsernamePrefix: "p"})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	a, err := g.GenerateRandom()
	if err != nil {
		t.Fatalf("GenerateRandom: %v", err)
	}
	b, err := g.GenerateRandom()
	if err != nil {
		t.Fatalf("GenerateRandom: %v", err)
	}
	if a.Username == b.Username {
		t.Fatalf("expected distinct usernames, got %q twice", a.Username)
	}
	for _, u := range []string{a.Username, b.Username} {
		if got := strings.Count(u, ":"); got != 2 {
			t.Fatalf("username %q has %d colons, want 2", u, got)
		}
	}
}
