package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"dinnerparty-backend/internal/apperr"
)

const (
	joinCodeLength = 6
	// no 0/O, 1/I/L: codes are read aloud and typed on phones
	joinCodeChars = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
)

// CodeGenerator produces candidate join codes
type CodeGenerator func() string

// generateJoinCode generates a random 6-character join code
func generateJoinCode() string {
	code := make([]byte, joinCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(joinCodeChars))))
		code[i] = joinCodeChars[n.Int64()]
	}
	return string(code)
}

// uniqueJoinCode draws codes until one is free in the store
func (s *GroupService) uniqueJoinCode(ctx context.Context) (string, error) {
	for i := 0; i < s.rules.JoinCodeAttempts; i++ {
		code := s.codes()
		exists, err := s.stores.Groups.JoinCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check join code existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", apperr.ErrJoinCodeExhausted.With(fmt.Errorf("no free code after %d attempts", s.rules.JoinCodeAttempts))
}
