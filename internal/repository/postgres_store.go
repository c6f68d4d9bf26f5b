package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// dbtx は*sqlx.DBと*sqlx.Txの共通操作。
type dbtx interface {
	sqlx.ExtContext
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore はPostgreSQLを使用したStore実装。
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlx.NewDb(db, "postgres")}
}

// Repos はトランザクション外で使用するリポジトリを返す。
func (s *PostgresStore) Repos() Repositories {
	return reposFor(s.db)
}

// WithinTx はfnを単一トランザクション内で実行する。
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, reposFor(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func reposFor(q dbtx) Repositories {
	return Repositories{
		Users:    &PostgresUserRepo{db: q},
		Books:    &PostgresBookRepo{db: q},
		Requests: &PostgresBorrowRequestRepo{db: q},
	}
}

// uniqueViolation はPostgreSQLの一意制約違反を*ErrDuplicateに変換する。
// 一意制約違反でない場合はnilを返す。
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &ErrDuplicate{Constraint: pqErr.Constraint}
	}
	return nil
}

// isUUID はidが正規形式（ハイフン区切り36文字）のUUIDかどうかを返す。
// uuid型の列に不正な文字列を渡すとPostgreSQLが22P02を返すため、ID検索の前に確認する。
func isUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*PostgresStore)(nil)
