package auth

import (
	"testing"
	"time"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "attendance-test"
)

func TestIssueParseRoundtrip(t *testing.T) {
	pair, err := Issue(42, 7, RoleTeacher, testIssuer, testKey, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	id, err := claims.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if id.UserID != 42 || id.ProfileID != 7 || id.Role != RoleTeacher {
		t.Fatalf("identity = %+v", id)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue(1, 1, RoleStudent, testIssuer, testKey, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "other-key", testIssuer); err == nil {
		t.Fatal("expected error for wrong signing key")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	pair, err := Issue(1, 1, RoleStudent, "someone-else", testKey, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, testKey, testIssuer); err == nil {
		t.Fatal("expected error for issuer mismatch")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue(1, 1, RoleAdmin, testIssuer, testKey, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, testKey, testIssuer); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestIdentityRejectsUnknownRole(t *testing.T) {
	c := Claims{Role: "superuser"}
	c.Subject = "1"
	if _, err := c.Identity(); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
