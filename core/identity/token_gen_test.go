package identity

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/samaecole/backend/core"
)

func TestMakeVerifyToken(t *testing.T) {
	tg := newTokenGenerator("password_reset", "secret", 3*24*time.Hour)

	now := time.Now().UTC()
	ident := Identity{
		ID:        "6f1c7f5e-1f7c-4a5e-9a50-8f1a43c3b0b1",
		Email:     "t@test.sn",
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: null.TimeFrom(now),
	}
	_ = ident.SetPassword("pwd123")

	validToken, err := tg.makeToken(ident)
	if err != nil {
		t.Fatalf("makeToken() error = %v", err)
	}

	// generate an expired token
	dayLate := tg.timeout + (24 * time.Hour)
	core.NowFunc = func() time.Time { return time.Now().UTC().Add(-dayLate) }
	expiredToken, err := tg.makeToken(ident)
	core.NowFunc = func() time.Time { return time.Now().UTC() } // reset
	if err != nil {
		t.Fatalf("makeToken() error = %v", err)
	}

	otherPurpose, _ := newTokenGenerator("email_confirmation", "secret", 3*24*time.Hour).makeToken(ident)

	changedPwd := ident
	_ = changedPwd.SetPassword("another-pwd")

	tests := []struct {
		name    string
		ident   Identity
		token   string
		wantErr error
	}{
		{name: "no token", ident: ident, wantErr: errInvalidToken},
		{name: "invalid parts len", ident: ident, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", ident: ident, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", ident: ident, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", ident: ident, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "other purpose", ident: ident, token: otherPurpose, wantErr: errInvalidToken},
		{name: "password changed since", ident: changedPwd, token: validToken, wantErr: errInvalidToken},
		{name: "expired token", ident: ident, token: expiredToken, wantErr: errTokenExpired},
		{name: "valid token", ident: ident, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tg.verifyToken(tt.ident, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
