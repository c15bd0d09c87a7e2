// internal/core/auth/service.go
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials cobre usuário inexistente e senha errada.
	ErrInvalidCredentials = errors.New("usuário ou senha inválidos")
	// ErrUserNotFound é devolvido pelo UserStore quando o usuário não existe.
	ErrUserNotFound = errors.New("usuário não encontrado")
)

// RoleAudit é a permissão exigida pelas rotas de auditoria.
const RoleAudit = "auditoria"

// User representa a estrutura de um usuário no Firestore.
type User struct {
	Username     string   `firestore:"username"`
	PasswordHash string   `firestore:"passwordHash"`
	Roles        []string `firestore:"roles"`
}

// UserStore busca usuários pelo login.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}

type Service interface {
	Login(ctx context.Context, username, password string) (string, error)
}

type service struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewService(users UserStore, secret []byte, ttl time.Duration, logger *zap.Logger) Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{users: users, secret: secret, ttl: ttl, logger: logger, now: time.Now}
}

func (s *service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("erro ao consultar usuário", zap.String("usuario", username), zap.Error(err))
		return "", errors.New("erro ao consultar o banco de dados")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	claims := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"roles":    user.Roles,
		"exp":      s.now().Add(s.ttl).Unix(),
	})
	tokenString, err := claims.SignedString(s.secret)
	if err != nil {
		return "", errors.New("erro ao gerar token de acesso")
	}
	return tokenString, nil
}
