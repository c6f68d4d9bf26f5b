package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hitoshi/foliora/internal/model"
)

const userColumns = `id, username, email, password_hash, address, avatar, role, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db dbtx
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: sqlxDB(db)}
}

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var avatar sql.NullString
	var role string
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Address, &avatar, &role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.Avatar = avatar.String
	user.Role = model.Role(role)
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	user, err := r.findOne(ctx, `id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := r.findOne(ctx, `username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := r.findOne(ctx, `lower(email) = lower($1)`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindSummaries は指定IDのユーザーの公開情報をIDをキーとして返す。
func (r *PostgresUserRepo) FindSummaries(ctx context.Context, ids []string) (map[string]model.UserSummary, error) {
	result := make(map[string]model.UserSummary, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email, avatar FROM users WHERE id = ANY($1::uuid[])`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s model.UserSummary
		var avatar sql.NullString
		if err := rows.Scan(&s.ID, &s.Username, &s.Email, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan user summary: %w", err)
		}
		s.Avatar = avatar.String
		result[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user summaries: %w", err)
	}
	return result, nil
}

// List は全ユーザーを登録日の新しい順に返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Create はユーザーを作成する。
// ユーザー名・メールアドレスの重複は*ErrDuplicateを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Address,
		nullString(user.Avatar), string(user.Role), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update はユーザー情報を上書き更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET username = $2, email = $3, password_hash = $4, address = $5,
		     avatar = $6, role = $7, updated_at = $8
		 WHERE id = $1`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Address,
		nullString(user.Avatar), string(user.Role), user.UpdatedAt,
	)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireAffected(result, "user", user.ID)
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するbooks、borrow_requestsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, "user", id)
}

func requireAffected(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func sqlxDB(db *sql.DB) dbtx {
	if db == nil {
		return nil
	}
	return sqlx.NewDb(db, "postgres")
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
