package token

import "medshare/pkg/platform/middleware/auth"

// MiddlewareAdapter exposes JWTService to the HTTP auth middleware.
type MiddlewareAdapter struct {
	service *JWTService
}

func NewMiddlewareAdapter(service *JWTService) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*auth.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{Subject: claims.Subject, Role: claims.Role}, nil
}
