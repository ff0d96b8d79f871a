package signingkeys

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var keyCols = []string{"id", "public_key", "private_key_encrypted", "is_active", "created_at", "rotated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGetActive_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	q := `(?s)^SELECT\s+id,\s*public_key,.*FROM\s+signing_keys\s+WHERE\s+is_active\s*$`
	mock.ExpectQuery(q).
		WillReturnRows(sqlmock.NewRows(keyCols).AddRow("k-1", []byte("pub"), "v1.a.b", true, created, nil))

	got, err := repo.GetActive(context.Background())
	if err != nil {
		t.Fatalf("GetActive error: %v", err)
	}
	if got.ID != "k-1" || !got.IsActive || got.RotatedAt != nil || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected key: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestGetActive_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+signing_keys`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetActive(context.Background())
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByID_RotatedKey(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rotated := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	q := `(?s)^SELECT\s+id,.*FROM\s+signing_keys\s+WHERE\s+id\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).
		WithArgs("k-old").
		WillReturnRows(sqlmock.NewRows(keyCols).AddRow("k-old", []byte("pub"), "v1.a.b", false, rotated.Add(-time.Hour), rotated))

	got, err := repo.GetByID(context.Background(), "k-old")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.IsActive || got.RotatedAt == nil || !got.RotatedAt.Equal(rotated) {
		t.Fatalf("unexpected key: %+v", got)
	}
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+signing_keys`).WithArgs("k").WillReturnError(errors.New("db down"))

	_, err := repo.GetByID(context.Background(), "k")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestList(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)^SELECT\s+id,.*FROM\s+signing_keys\s+ORDER\s+BY\s+created_at,\s*id\s*$`
	mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows(keyCols).
		AddRow("k-1", []byte("p1"), "v1.a.b", false, now.Add(-time.Hour), now).
		AddRow("k-2", []byte("p2"), "v1.c.d", true, now, nil))

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "k-1" || got[1].ID != "k-2" || !got[1].IsActive {
		t.Fatalf("unexpected keys: %+v", got)
	}
}

func TestList_RowError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+signing_keys`).WillReturnRows(sqlmock.NewRows(keyCols).
		AddRow("k-1", []byte("p1"), "v1.a.b", true, time.Now(), nil).
		RowError(0, errors.New("row broke")))

	if _, err := repo.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeactivateActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	q := `(?s)^UPDATE\s+signing_keys\s+SET\s+is_active\s*=\s*FALSE,\s*rotated_at\s*=\s*\$1\s+WHERE\s+is_active\s*$`
	mock.ExpectExec(q).WithArgs(at).WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.DeactivateActive(context.Background(), at)
	if err != nil {
		t.Fatalf("DeactivateActive error: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 row, got %d", n)
	}
}

func TestInsert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	k := &models.SigningKey{ID: "k-1", PublicKey: []byte("pub"), PrivateKeyEncrypted: "v1.a.b", IsActive: true, CreatedAt: time.Now().UTC()}
	q := `(?s)^INSERT\s+INTO\s+signing_keys\s*\(id,\s*public_key,\s*private_key_encrypted,\s*is_active,\s*created_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*$`
	mock.ExpectExec(q).
		WithArgs(k.ID, k.PublicKey, k.PrivateKeyEncrypted, true, k.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), k); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
}

func TestInsert_SecondActiveKeyIsUniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+signing_keys`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "signing_keys_one_active"})

	err := repo.Insert(context.Background(), &models.SigningKey{ID: "k-2", IsActive: true})
	if !dbx.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation to survive wrapping, got %v", err)
	}
}
