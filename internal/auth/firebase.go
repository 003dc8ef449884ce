package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
)

// FirebaseVerifier checks Firebase Authentication ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
}

func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, raw string) (Identity, error) {
	token, err := v.client.VerifyIDToken(ctx, raw)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{UID: token.UID}
	if name, ok := token.Claims["name"].(string); ok {
		id.DisplayName = name
	}
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = email
	}
	return id, nil
}
