package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"cuzdan/internal/core"
	"cuzdan/internal/store"
)

// Seed is the JSON layout of a demo data file.
type Seed struct {
	Users []SeedUser `json:"users"`
}

type SeedUser struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Settings *core.Settings `json:"settings,omitempty"`
	Records  core.Records   `json:"records"`
}

// PasswordHasher turns a seed password into the stored hash.
type PasswordHasher func(password string) (string, error)

// LoadSeedFile reads path and applies it to s.
func (s *Store) LoadSeedFile(ctx context.Context, path string, hash PasswordHasher) (int, error) {
	return LoadSeedFile(ctx, s, path, hash)
}

// ApplySeed applies seed to s.
func (s *Store) ApplySeed(ctx context.Context, seed Seed, hash PasswordHasher) (int, error) {
	return ApplySeed(ctx, s, seed, hash)
}

// LoadSeedFile reads path and applies it to repo with ApplySeed. A missing
// file is not an error.
func LoadSeedFile(ctx context.Context, repo store.Repository, path string, hash PasswordHasher) (int, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(b, &seed); err != nil {
		return 0, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return ApplySeed(ctx, repo, seed, hash)
}

// ApplySeed creates the seed users and their records in any backend. Users
// that already exist are skipped. Records are normalized and validated like
// any write.
func ApplySeed(ctx context.Context, s store.Repository, seed Seed, hash PasswordHasher) (int, error) {
	created := 0
	for _, su := range seed.Users {
		if _, err := s.GetUserByEmail(ctx, su.Email); err == nil {
			continue
		}
		pw, err := hash(su.Password)
		if err != nil {
			return created, fmt.Errorf("hash seed password for %s: %w", su.Email, err)
		}
		u, err := s.CreateUser(ctx, core.User{Email: su.Email, PasswordHash: pw, CreatedAt: time.Now().UTC()})
		if err != nil {
			return created, err
		}
		if su.Settings != nil {
			st := *su.Settings
			st.UserID = u.ID
			if err := s.SaveSettings(ctx, st); err != nil {
				return created, err
			}
		}
		if err := seedRecords(ctx, s, u.ID, su.Records); err != nil {
			return created, fmt.Errorf("seed records for %s: %w", su.Email, err)
		}
		created++
	}
	return created, nil
}

func seedRecords(ctx context.Context, s store.Repository, userID string, r core.Records) error {
	for _, in := range r.Incomes {
		if err := insert(ctx, s.Incomes(), userID, in.Normalize()); err != nil {
			return err
		}
	}
	for _, ex := range r.Expenses {
		if err := insert(ctx, s.Expenses(), userID, ex.Normalize()); err != nil {
			return err
		}
	}
	for _, d := range r.Debts {
		if err := insert(ctx, s.Debts(), userID, d.Normalize()); err != nil {
			return err
		}
	}
	for _, a := range r.Assets {
		if err := insert(ctx, s.Assets(), userID, a.Normalize()); err != nil {
			return err
		}
	}
	return nil
}

type validatable interface {
	Validate() error
}

func insert[T validatable](ctx context.Context, repo store.RecordRepository[T], userID string, rec T) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := repo.Create(ctx, userID, rec)
	return err
}
