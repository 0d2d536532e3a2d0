package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brexis/gosso/pkg/server"
)

// userRecord is one entry of the users file. Passwords are stored as
// lowercase hex SHA-256 digests, never plaintext.
type userRecord struct {
	ID             int64  `yaml:"id"`
	Username       string `yaml:"username"`
	Email          string `yaml:"email"`
	FullName       string `yaml:"full_name"`
	PasswordSHA256 string `yaml:"password_sha256"`
	IsActive       bool   `yaml:"is_active"`
}

type usersFile struct {
	Users []userRecord `yaml:"users"`
}

// fileUsers is a server.UserProvider over a yaml account file. It exists so
// the server binary runs standalone; production deployments plug their own
// provider in through the library.
type fileUsers struct {
	records  []userRecord
	loadedAt time.Time
}

func loadUsersFile(path string) (*fileUsers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var file usersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}

	for i, u := range file.Users {
		if u.Email == "" || u.PasswordSHA256 == "" {
			return nil, fmt.Errorf("users file entry %d: email and password_sha256 are required", i)
		}
	}

	return &fileUsers{records: file.Users, loadedAt: time.Now()}, nil
}

func (f *fileUsers) FindByCredentials(ctx context.Context, credentials map[string]string) (*server.User, error) {
	field := credentials["login"]
	if field == "" {
		field = "email"
	}

	user, err := f.FindByField(ctx, field, credentials[field])
	if err != nil || user == nil {
		return nil, err
	}

	record := f.record(user.ID)
	sum := sha256.Sum256([]byte(credentials["password"]))
	digest := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(digest), []byte(record.PasswordSHA256)) != 1 {
		return nil, nil
	}
	if !user.IsActive {
		return nil, nil
	}
	return user, nil
}

func (f *fileUsers) FindByField(ctx context.Context, field, value string) (*server.User, error) {
	if value == "" {
		return nil, nil
	}
	for _, r := range f.records {
		match := false
		switch field {
		case "email":
			match = r.Email == value
		case "username":
			match = r.Username == value
		}
		if match {
			return &server.User{
				ID:        r.ID,
				Username:  r.Username,
				Email:     r.Email,
				FullName:  r.FullName,
				IsActive:  r.IsActive,
				CreatedAt: f.loadedAt,
			}, nil
		}
	}
	return nil, nil
}

func (f *fileUsers) record(id int64) userRecord {
	for _, r := range f.records {
		if r.ID == id {
			return r
		}
	}
	return userRecord{}
}
