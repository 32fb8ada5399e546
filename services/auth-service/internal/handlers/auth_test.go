package handlers

import (
	"testing"

	"github.com/corebuddy/studiocore/libs/auth"
	"github.com/corebuddy/studiocore/services/auth-service/internal/storage"
)

func TestPasswordHashing(t *testing.T) {
	password := "pass123"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

func TestMemberTypes(t *testing.T) {
	for _, mt := range []string{"free", "block", "core_buddy", "premium", "circuit", "circuit_vip"} {
		if !memberTypes[mt] {
			t.Fatalf("member type %q should be accepted", mt)
		}
	}
	if memberTypes["owner"] || memberTypes[""] {
		t.Fatal("unknown member types should be rejected")
	}
}

func TestIssueJWTCarriesMemberClaims(t *testing.T) {
	signer := NewHS256Signer("test-secret")
	member := storage.Member{
		ID:         "m-1",
		Name:       "Alex",
		Role:       "member",
		MemberType: "circuit_vip",
	}
	token, err := issueJWT(member, signer)
	if err != nil {
		t.Fatalf("issueJWT: %v", err)
	}

	claims, err := auth.ParseAndVerifyHS256(token, "test-secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "m-1" || claims.MemberType != "circuit_vip" || claims.Role != "member" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Exp <= claims.Iat {
		t.Fatal("token should expire after issuance")
	}
}
