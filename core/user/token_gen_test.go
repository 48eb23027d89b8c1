package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

func TestMakeVerifyToken(t *testing.T) {
	conf := core.NewTestConfig()

	now := time.Now()
	usr := User{
		ID:        "7d8b6f9e-4a34-4bb1-9d6e-3c2d5d8f0a11",
		Name:      "T",
		Username:  "t",
		Email:     "t@test.test",
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	usr.SetActive(true)
	require.NoError(t, usr.SetPassword("pwd"))

	validToken, err := makeToken(usr, conf)
	require.NoError(t, err)

	// generate an expired token
	dayLate := conf.PasswordResetTimeoutDelta + (24 * time.Hour)
	NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, err := makeToken(usr, conf)
	NowFunc = time.Now // reset
	require.NoError(t, err)

	// changing the password invalidates previous tokens
	usedUsr := usr
	require.NoError(t, usedUsr.SetPassword("new-pwd"))

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "password changed", usr: usedUsr, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, verifyToken(tt.usr, tt.token, conf))
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "7d8b6f9e-4a34-4bb1-9d6e-3c2d5d8f0a11"}
	id, err := decodeUID(EncodeUID(usr))
	require.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = decodeUID("!!!")
	assert.Error(t, err)
}
