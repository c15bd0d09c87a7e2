package auth

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// FirestoreUserStore lê a coleção "users".
type FirestoreUserStore struct {
	db *firestore.Client
}

func NewFirestoreUserStore(db *firestore.Client) *FirestoreUserStore {
	return &FirestoreUserStore{db: db}
}

func (s *FirestoreUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := s.db.Collection("users").Where("username", "==", username).Limit(1).Documents(ctx)
	defer query.Stop()

	doc, err := query.Next()
	if err == iterator.Done {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao consultar usuários: %w", err)
	}

	var user User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("erro ao ler dados do usuário: %w", err)
	}
	return &user, nil
}
