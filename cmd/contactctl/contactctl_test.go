package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"contact-guard/internal/identity"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
)

// setupMiniredis points the CLI's config at a fresh in-memory Redis.
func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("LIMITS_IP_REQUESTS", "2")
	return mr
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckIPCmd(t *testing.T) {
	setupMiniredis(t)

	wants := []string{
		"allowed reason=ok remaining=1",
		"allowed reason=ok remaining=0",
		"denied reason=rate_limited",
	}
	for i, want := range wants {
		out, err := run(t, "check", "ip", "203.0.113.7")
		if err != nil {
			t.Fatalf("check %d: %v", i+1, err)
		}
		if !strings.Contains(out, want) {
			t.Fatalf("check %d: unexpected output %q, want %q", i+1, out, want)
		}
	}
}

func TestCheckEmailAndResetCmd(t *testing.T) {
	mr := setupMiniredis(t)

	if out, err := run(t, "check", "email", "Ada@Example.com"); err != nil || !strings.Contains(out, "allowed") {
		t.Fatalf("first check: %q %v", out, err)
	}
	if !mr.Exists("rl:email:" + identity.Normalize("ada@example.com")) {
		t.Fatalf("expected cooldown key in redis, have %v", mr.Keys())
	}
	if out, err := run(t, "check", "email", "ada@example.com"); err != nil || !strings.Contains(out, "denied reason=cooldown") {
		t.Fatalf("second check: %q %v", out, err)
	}

	if out, err := run(t, "reset", "--email", "ada@example.com"); err != nil || !strings.Contains(out, "counters reset") {
		t.Fatalf("reset: %q %v", out, err)
	}
	if out, err := run(t, "check", "email", "ada@example.com"); err != nil || !strings.Contains(out, "allowed") {
		t.Fatalf("check after reset: %q %v", out, err)
	}
}

func TestResetCmdRequiresKey(t *testing.T) {
	setupMiniredis(t)
	if _, err := run(t, "reset"); err == nil {
		t.Fatal("expected error without --ip or --email")
	}
}

func TestDigestCmd(t *testing.T) {
	out, err := run(t, "digest", "  Ada@Example.COM ")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if strings.TrimSpace(out) != identity.Normalize("ada@example.com") {
		t.Fatalf("unexpected digest %q", out)
	}
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "cli-secret")
	t.Setenv("ADMIN_JWT_ISSUER", "contact-guard")

	out, err := run(t, "token", "--subject", "alice", "--ttl", "5m")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	})
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if claims["sub"] != "alice" || claims["iss"] != "contact-guard" || claims["role"] != "operator" {
		t.Fatalf("unexpected claims %v", claims)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || time.Until(exp.Time) > 5*time.Minute {
		t.Fatalf("unexpected expiry %v %v", exp, err)
	}
}

func TestTokenCmdRequiresSecret(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "")
	if _, err := run(t, "token", "--subject", "alice"); err == nil {
		t.Fatal("expected error without a signing secret")
	}
}
