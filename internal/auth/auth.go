package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"kiama-backend/internal/apperrors"
)

// UserToken is the claim set of the externally-issued credential. The token
// is opaque to the rest of the server beyond signature and expiry checks;
// the username claim becomes the authenticated principal.
type UserToken struct {
	UserID   int64  `json:"userID"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

var jwtSecret []byte
var serverPasswordHash []byte

// Setup stores the signing secret and the optional bcrypt hash of the shared
// server password. An empty hash disables the password gate entirely.
func Setup(secret string, passwordHash string) {
	jwtSecret = []byte(secret)
	serverPasswordHash = []byte(passwordHash)
}

func HasServerPassword() bool {
	return len(serverPasswordHash) > 0
}

// CheckServerPassword runs before any token check. When a password is
// configured, a missing or wrong password refuses the connection.
func CheckServerPassword(password string) error {
	if !HasServerPassword() {
		return nil
	}

	err := bcrypt.CompareHashAndPassword(serverPasswordHash, []byte(password))
	if err != nil {
		return apperrors.Unauthenticated("wrong server password")
	}
	return nil
}

// VerifyToken validates the signed credential and yields the principal.
// There is no partial state: a bad signature, a missing username claim or an
// expired token all reject the connection attempt.
func VerifyToken(tokenString string) (UserToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserToken{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil {
		return UserToken{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "couldn't verify token", err)
	}

	claims, ok := token.Claims.(*UserToken)
	if !ok {
		return UserToken{}, apperrors.Unauthenticated("invalid token claims")
	}

	if claims.Username == "" {
		return UserToken{}, apperrors.Unauthenticated("token carries no username")
	}

	if claims.ExpiresAt != nil && time.Now().UTC().After(claims.ExpiresAt.UTC()) {
		return UserToken{}, apperrors.Unauthenticated("token expired")
	}

	return *claims, nil
}

// CreateToken signs a credential the way the standalone auth service does.
// The server itself only needs this for self-contained deployments and tests.
func CreateToken(userID int64, username string, lifetime time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}

	currentTime := time.Now().UTC()

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, UserToken{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(lifetime)),
		},
	})

	return token.SignedString(jwtSecret)
}

// HashServerPassword is used by operators to produce the config value.
func HashServerPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
