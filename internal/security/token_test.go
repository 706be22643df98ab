package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, err := IssueToken("s3cret", Identity{UserID: 12, IgnoreTimeLimits: true}, time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	identity, err := ParseToken("s3cret", token, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if identity.UserID != 12 || !identity.IgnoreTimeLimits || identity.Admin {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestParseTokenRejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, err := IssueToken("s3cret", Identity{UserID: 1, Admin: true}, time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, errExpired := ParseToken("s3cret", token, now.Add(2*time.Hour)); !errors.Is(errExpired, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", errExpired)
	}
	if _, errSecret := ParseToken("other", token, now); !errors.Is(errSecret, ErrInvalidToken) {
		t.Fatalf("expected wrong secret to be rejected, got %v", errSecret)
	}
	if _, errGarbage := ParseToken("s3cret", "not.a.token", now); !errors.Is(errGarbage, ErrInvalidToken) {
		t.Fatalf("expected garbage to be rejected, got %v", errGarbage)
	}
	if _, errEmpty := ParseToken("", token, now); !errors.Is(errEmpty, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", errEmpty)
	}
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		UserID: 4,
	})
	signed, err := token.SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, errParse := ParseToken("s3cret", signed, now); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected HS512 token to be rejected, got %v", errParse)
	}
}

func TestIssueTokenRequiresUser(t *testing.T) {
	if _, err := IssueToken("s3cret", Identity{}, time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if _, err := IssueToken(" ", Identity{UserID: 1}, time.Hour, time.Now()); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"Bearer  abc ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}
	for _, tc := range cases {
		got, err := BearerToken(tc.header)
		if (err != nil) != tc.wantErr {
			t.Fatalf("BearerToken(%q): expected error %v, got %v", tc.header, tc.wantErr, err)
		}
		if got != tc.want {
			t.Fatalf("BearerToken(%q): expected %q, got %q", tc.header, tc.want, got)
		}
	}
}

func TestGenerateRandomString(t *testing.T) {
	a, err := GenerateRandomString(16)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
	b, _ := GenerateRandomString(16)
	if a == b {
		t.Fatalf("expected distinct values")
	}
	if _, errZero := GenerateRandomString(0); errZero == nil {
		t.Fatalf("expected error for zero length")
	}
}
