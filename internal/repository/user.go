package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
)

// userCols: колонки профиля в порядке scanProfile.
const userCols = `id, fname, lname, email, profile_image_url, profile_image_id, role, business_info`

// UserRepository читает профили; записью в users занимается сервис пользователей.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanProfile(s interface{ Scan(dest ...any) error }, u *model.UserProfile) error {
	return s.Scan(&u.ID, &u.FName, &u.LName, &u.Email, &u.UserProfileImage.URL, &u.UserProfileImage.PublicID, &u.Role, &u.BusinessInfo)
}

func (r *UserRepository) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	defer logger.DeferLogDuration("user.GetProfile", time.Now())()
	u := &model.UserProfile{}
	if err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id), u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetProfile: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetProfiles(ctx context.Context, ids []string) (map[string]model.UserProfile, error) {
	defer logger.DeferLogDuration("user.GetProfiles", time.Now())()
	out := make(map[string]model.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userCols+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetProfiles query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u model.UserProfile
		if err := scanProfile(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.GetProfiles scan: %w", err)
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.GetProfiles rows: %w", err)
	}
	return out, nil
}

// Upsert заводит или обновляет профиль. Используется синхронизацией каталога и тестами.
func (r *UserRepository) Upsert(ctx context.Context, u *model.UserProfile) error {
	defer logger.DeferLogDuration("user.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, fname, lname, email, profile_image_url, profile_image_id, role, business_info)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET fname = EXCLUDED.fname, lname = EXCLUDED.lname, email = EXCLUDED.email,
		   profile_image_url = EXCLUDED.profile_image_url, profile_image_id = EXCLUDED.profile_image_id,
		   role = EXCLUDED.role, business_info = EXCLUDED.business_info`,
		u.ID, u.FName, u.LName, u.Email, u.UserProfileImage.URL, u.UserProfileImage.PublicID, u.Role, u.BusinessInfo,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Upsert: %w", err)
	}
	return nil
}
