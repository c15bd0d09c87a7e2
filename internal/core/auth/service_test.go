package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct {
	users map[string]*User
	err   error
}

func (f fakeUsers) FindByUsername(_ context.Context, username string) (*User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func users(t *testing.T) fakeUsers {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3nha"), bcrypt.MinCost)
	require.NoError(t, err)
	return fakeUsers{users: map[string]*User{
		"ana": {Username: "ana", PasswordHash: string(hash), Roles: []string{RoleAudit}},
	}}
}

func TestLogin(t *testing.T) {
	secret := []byte("segredo")
	svc := NewService(users(t), secret, time.Hour, nil)

	token, err := svc.Login(context.Background(), "ana", "s3nha")
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return secret, nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "ana", claims["username"])
	assert.Equal(t, []interface{}{RoleAudit}, claims["roles"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp.Time, time.Minute)
}

func TestLoginRejects(t *testing.T) {
	svc := NewService(users(t), []byte("segredo"), 0, nil)

	_, err := svc.Login(context.Background(), "ana", "errada")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "bruno", "s3nha")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "usuário inexistente não se distingue de senha errada")
}

func TestLoginStoreFailure(t *testing.T) {
	svc := NewService(fakeUsers{err: errors.New("firestore fora do ar")}, []byte("segredo"), 0, nil)

	_, err := svc.Login(context.Background(), "ana", "s3nha")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "erro ao consultar o banco de dados", err.Error())
}
