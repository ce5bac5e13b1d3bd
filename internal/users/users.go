package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("user not found")

// Profile is the slice of a user the compliance engine cares about. The
// verification flag is set by an out-of-scope identity flow; this core only
// reads it.
type Profile struct {
	UserID      string
	DateOfBirth *time.Time
	AgeVerified bool
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Profile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := r.DB.QueryRow(ctx,
		`SELECT id, date_of_birth, age_verified FROM users WHERE id=$1`, userID).
		Scan(&p.UserID, &p.DateOfBirth, &p.AgeVerified)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}
