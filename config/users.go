package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// resolveUsers builds the static operator table: TA_OPERATOR_USERS, when
// set, overrides the two restored defaults from auth.py with
// "user:bcryptHash:ROLE" entries (a hash, not a plaintext password,
// since this table may be committed to a deployment's environment).
// When TA_OPERATOR_USERS is unset, the two default accounts are hashed
// fresh on every Load.
func resolveUsers() ([]User, error) {
	raw := strings.TrimSpace(os.Getenv("TA_OPERATOR_USERS"))
	if raw == "" {
		users := make([]User, len(defaultUsers))
		for i, d := range defaultUsers {
			hash, err := hashPassword(d.Password)
			if err != nil {
				return nil, fmt.Errorf("config: hash default user %s: %w", d.Name, err)
			}
			users[i] = User{Name: d.Name, PasswordHash: hash, Role: d.Role}
		}
		return users, nil
	}

	var users []User
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: TA_OPERATOR_USERS entry %q must be user:bcryptHash:ROLE", entry)
		}
		users = append(users, User{Name: parts[0], PasswordHash: parts[1], Role: strings.ToUpper(parts[2])})
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("config: TA_OPERATOR_USERS set but empty")
	}
	return users, nil
}

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether password matches u's stored bcrypt hash.
func VerifyPassword(u User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
