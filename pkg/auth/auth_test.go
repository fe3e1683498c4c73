package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGuestTokenRoundTrip(t *testing.T) {
	token, err := GenerateGuestToken("sess-guest-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateGuestToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.SessionID != "sess-guest-1" {
		t.Errorf("session id = %q", claims.SessionID)
	}
	if claims.Subject != "guest" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestUserTokenRoundTrip(t *testing.T) {
	token, err := GenerateUserToken("sess-user-1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateUserToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.SessionID != "sess-user-1" || claims.Username != "alice" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateTokenDispatchesOnSubject(t *testing.T) {
	guestToken, err := GenerateGuestToken("g-1")
	if err != nil {
		t.Fatalf("generate guest: %v", err)
	}
	identity, err := ValidateToken(guestToken)
	if err != nil {
		t.Fatalf("validate guest: %v", err)
	}
	if identity.SessionID != "g-1" || identity.Username != "" {
		t.Errorf("guest identity = %+v", identity)
	}

	userToken, err := GenerateUserToken("u-1", "bob")
	if err != nil {
		t.Fatalf("generate user: %v", err)
	}
	identity, err = ValidateToken(userToken)
	if err != nil {
		t.Fatalf("validate user: %v", err)
	}
	if identity.SessionID != "u-1" || identity.Username != "bob" {
		t.Errorf("user identity = %+v", identity)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	if _, err := ValidateToken("not.a.token"); err == nil {
		t.Error("expected error for malformed token")
	}
	if _, err := ValidateGuestToken(""); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestExtractTokenFromRequest(t *testing.T) {
	token, err := GenerateGuestToken("x")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	t.Run("authorization header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		got, err := ExtractTokenFromRequest(r)
		if err != nil || got != token {
			t.Errorf("got %q, err %v", got, err)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Token abc")
		if _, err := ExtractTokenFromRequest(r); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.AddCookie(&http.Cookie{Name: cookieName, Value: token})
		got, err := ExtractTokenFromRequest(r)
		if err != nil || got != token {
			t.Errorf("got %q, err %v", got, err)
		}
	})

	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/?token="+token, nil)
		got, err := ExtractTokenFromRequest(r)
		if err != nil || got != token {
			t.Errorf("got %q, err %v", got, err)
		}
	})

	t.Run("none", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		if _, err := ExtractTokenFromRequest(r); err == nil {
			t.Error("expected error")
		}
	})
}

func TestRequireToken(t *testing.T) {
	var gotSessionID string
	handler := RequireToken(func(w http.ResponseWriter, r *http.Request) {
		gotSessionID = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token passes", func(t *testing.T) {
		token, err := GenerateGuestToken("mw-sess")
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d", w.Code)
		}
		if gotSessionID != "mw-sess" {
			t.Errorf("session id = %q", gotSessionID)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		handler(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		handler(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		hasError bool
	}{
		{"valid", "alice", "secret99", false},
		{"underscore ok", "user_one", "secret99", false},
		{"too short username", "ab", "secret99", true},
		{"too short password", "alice", "abc", true},
		{"invalid characters", "al ice", "secret99", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCredentials(tt.username, tt.password)
			if tt.hasError && err == nil {
				t.Error("expected error")
			}
			if !tt.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
