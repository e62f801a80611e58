package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/console-bank/internal/auth"
)

func principalFrom(r *http.Request) (auth.Principal, *AppError) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return auth.Principal{}, ErrMissingToken
	}
	return p, nil
}

func userIDFromPath(r *http.Request) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, ErrUserNotFound
	}
	return id, nil
}
