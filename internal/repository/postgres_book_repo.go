package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/foliora/internal/model"
)

var pg = goqu.Dialect("postgres")

var bookColumns = []any{
	"id", "title", "author", "description", "genre", "image_url", "owner_id",
	"status", "borrowed_by", "expected_return_date", "created_at", "updated_at",
}

// bookRow はbooksテーブルの1行。
type bookRow struct {
	ID                 string         `db:"id"`
	Title              string         `db:"title"`
	Author             string         `db:"author"`
	Description        string         `db:"description"`
	Genre              string         `db:"genre"`
	ImageURL           string         `db:"image_url"`
	OwnerID            string         `db:"owner_id"`
	Status             string         `db:"status"`
	BorrowedBy         sql.NullString `db:"borrowed_by"`
	ExpectedReturnDate sql.NullTime   `db:"expected_return_date"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (row *bookRow) toModel() *model.Book {
	book := &model.Book{
		ID:          row.ID,
		Title:       row.Title,
		Author:      row.Author,
		Description: row.Description,
		Genre:       row.Genre,
		ImageURL:    row.ImageURL,
		OwnerID:     row.OwnerID,
		Status:      model.BookStatus(row.Status),
		BorrowedBy:  row.BorrowedBy.String,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.ExpectedReturnDate.Valid {
		t := row.ExpectedReturnDate.Time
		book.ExpectedReturnDate = &t
	}
	return book
}

func bookRecord(book *model.Book) goqu.Record {
	return goqu.Record{
		"title":                book.Title,
		"author":               book.Author,
		"description":          book.Description,
		"genre":                book.Genre,
		"image_url":            book.ImageURL,
		"owner_id":             book.OwnerID,
		"status":               string(book.Status),
		"borrowed_by":          nullString(book.BorrowedBy),
		"expected_return_date": book.ExpectedReturnDate,
		"updated_at":           book.UpdatedAt,
	}
}

// likePattern はILIKE用に入力をエスケープし、部分一致パターンにする。
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// PostgresBookRepo はPostgreSQLを使用した書籍リポジトリ。
// クエリはgoquで組み立て、sqlxで構造体にスキャンする。
type PostgresBookRepo struct {
	db dbtx
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: sqlxDB(db)}
}

func (r *PostgresBookRepo) selectBooks() *goqu.SelectDataset {
	return pg.From("books").Select(bookColumns...).Prepared(true)
}

func (r *PostgresBookRepo) getOne(ctx context.Context, ds *goqu.SelectDataset) (*model.Book, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build book query: %w", err)
	}
	var row bookRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *PostgresBookRepo) selectMany(ctx context.Context, ds *goqu.SelectDataset) ([]*model.Book, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build book query: %w", err)
	}
	var rows []bookRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, err
	}
	books := make([]*model.Book, 0, len(rows))
	for i := range rows {
		books = append(books, rows[i].toModel())
	}
	return books, nil
}

func (r *PostgresBookRepo) count(ctx context.Context, where ...exp.Expression) (int, error) {
	query, args, err := pg.From("books").Select(goqu.COUNT("*")).Where(where...).Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// FindByID は指定IDの書籍を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	if !isUUID(id) {
		return nil, nil
	}
	book, err := r.getOne(ctx, r.selectBooks().Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, fmt.Errorf("failed to find book by ID: %w", err)
	}
	return book, nil
}

// LockByID は指定IDの書籍をSELECT ... FOR UPDATEで取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) LockByID(ctx context.Context, id string) (*model.Book, error) {
	if !isUUID(id) {
		return nil, nil
	}
	book, err := r.getOne(ctx, r.selectBooks().Where(goqu.C("id").Eq(id)).ForUpdate(exp.Wait))
	if err != nil {
		return nil, fmt.Errorf("failed to lock book: %w", err)
	}
	return book, nil
}

// FindByOwnerTitleAuthor は所有者・タイトル・著者が一致する書籍を検索する。
func (r *PostgresBookRepo) FindByOwnerTitleAuthor(ctx context.Context, ownerID, title, author string) (*model.Book, error) {
	book, err := r.getOne(ctx, r.selectBooks().Where(
		goqu.C("owner_id").Eq(ownerID),
		goqu.Func("lower", goqu.C("title")).Eq(strings.ToLower(title)),
		goqu.Func("lower", goqu.C("author")).Eq(strings.ToLower(author)),
	).Limit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to find book by title and author: %w", err)
	}
	return book, nil
}

// List は書籍を登録日の新しい順に返す。limitが0以下の場合は全件返す。
func (r *PostgresBookRepo) List(ctx context.Context, limit int) ([]*model.Book, error) {
	ds := r.selectBooks().Order(goqu.C("created_at").Desc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	books, err := r.selectMany(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// ListByOwner は所有者の書籍一覧を返す。
func (r *PostgresBookRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Book, error) {
	books, err := r.selectMany(ctx, r.selectBooks().
		Where(goqu.C("owner_id").Eq(ownerID)).
		Order(goqu.C("created_at").Desc()))
	if err != nil {
		return nil, fmt.Errorf("failed to list books by owner: %w", err)
	}
	return books, nil
}

// ListBorrowedBy は指定ユーザーが借りている書籍一覧を返す。
func (r *PostgresBookRepo) ListBorrowedBy(ctx context.Context, userID string) ([]*model.Book, error) {
	books, err := r.selectMany(ctx, r.selectBooks().
		Where(goqu.C("borrowed_by").Eq(userID)).
		Order(goqu.C("updated_at").Desc()))
	if err != nil {
		return nil, fmt.Errorf("failed to list borrowed books: %w", err)
	}
	return books, nil
}

// Search はフィルタ条件に一致する書籍を返す。
func (r *PostgresBookRepo) Search(ctx context.Context, filter model.BookFilter) ([]*model.Book, error) {
	var where []exp.Expression
	if filter.Title != "" {
		where = append(where, goqu.C("title").ILike(likePattern(filter.Title)))
	}
	if filter.Genre != "" {
		where = append(where, goqu.C("genre").ILike(likePattern(filter.Genre)))
	}
	if filter.TitleOrAuthor != "" {
		p := likePattern(filter.TitleOrAuthor)
		where = append(where, goqu.Or(goqu.C("title").ILike(p), goqu.C("author").ILike(p)))
	}
	if filter.Status != nil {
		where = append(where, goqu.C("status").Eq(string(*filter.Status)))
	}

	books, err := r.selectMany(ctx, r.selectBooks().Where(where...).Order(goqu.C("created_at").Desc()))
	if err != nil {
		return nil, fmt.Errorf("failed to search books: %w", err)
	}
	return books, nil
}

// CountByOwner は所有者の書籍数を返す。
func (r *PostgresBookRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	n, err := r.count(ctx, goqu.C("owner_id").Eq(ownerID))
	if err != nil {
		return 0, fmt.Errorf("failed to count books by owner: %w", err)
	}
	return n, nil
}

// CountBorrowedBy は指定ユーザーが借りている書籍数を返す。
func (r *PostgresBookRepo) CountBorrowedBy(ctx context.Context, userID string) (int, error) {
	n, err := r.count(ctx, goqu.C("borrowed_by").Eq(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to count borrowed books: %w", err)
	}
	return n, nil
}

// CountLentByOwner は所有者の書籍のうち貸出中の数を返す。
func (r *PostgresBookRepo) CountLentByOwner(ctx context.Context, ownerID string) (int, error) {
	n, err := r.count(ctx,
		goqu.C("owner_id").Eq(ownerID),
		goqu.C("status").Eq(string(model.BookBorrowed)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count lent books: %w", err)
	}
	return n, nil
}

// Create は書籍を作成する。
func (r *PostgresBookRepo) Create(ctx context.Context, book *model.Book) error {
	record := bookRecord(book)
	record["id"] = book.ID
	record["created_at"] = book.CreatedAt

	query, args, err := pg.Insert("books").Rows(record).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to insert book: %w", err)
	}
	return nil
}

// Update は書籍情報を上書き更新する。
func (r *PostgresBookRepo) Update(ctx context.Context, book *model.Book) error {
	query, args, err := pg.Update("books").
		Set(bookRecord(book)).
		Where(goqu.C("id").Eq(book.ID)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to update book: %w", err)
	}
	return requireAffected(result, "book", book.ID)
}

// DeleteByID は指定IDの書籍を削除する。
func (r *PostgresBookRepo) DeleteByID(ctx context.Context, id string) error {
	query, args, err := pg.Delete("books").Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return requireAffected(result, "book", id)
}

// DeleteByOwner は所有者の全書籍を削除する。
func (r *PostgresBookRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	query, args, err := pg.Delete("books").Where(goqu.C("owner_id").Eq(ownerID)).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete books by owner: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BookRepository = (*PostgresBookRepo)(nil)
