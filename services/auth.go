package services

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var JWTSecret = []byte(getJWTSecret())

func getJWTSecret() string {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "dev_jwt_secret_super_secure"
	}
	return secret
}

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateJWT issues a token carrying the user and organization ids.
func GenerateJWT(userID, orgID uint) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"org_id":  orgID,
		"exp":     time.Now().Add(time.Hour * 72).Unix(), // 3 Days expiration
	})
	return token.SignedString(JWTSecret)
}

// ValidateJWT parses the JWT string and returns the user and org ids if valid
func ValidateJWT(tokenString string) (uint, uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return JWTSecret, nil
	})

	if err != nil {
		return 0, 0, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, 0, errors.New("invalid token")
	}

	// MapClaims parses numbers as float64
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, 0, errors.New("invalid user_id claim")
	}
	orgIDFloat, ok := claims["org_id"].(float64)
	if !ok {
		return 0, 0, errors.New("invalid org_id claim")
	}
	return uint(userIDFloat), uint(orgIDFloat), nil
}
