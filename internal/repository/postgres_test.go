package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pennywise/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountRowColumns = []string{"id", "email", "password_hash", "federated_id", "created_at", "updated_at"}

func TestPostgresAccounts_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresAccounts(db)
	ctx := context.Background()

	t.Run("successful create", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(sqlmock.AnyArg(), "alice@example.com", nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(accountRowColumns).
				AddRow("acc-1", "alice@example.com", nil, nil, now, now))

		account, err := repo.Create(ctx, "alice@example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, "acc-1", account.ID)
		assert.True(t, account.Pending())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO accounts").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_email_key"})

		_, err := repo.Create(ctx, "alice@example.com", nil)
		assert.ErrorIs(t, err, ErrDuplicateEmail)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate federated identity", func(t *testing.T) {
		sub := "sub-1"
		mock.ExpectQuery("INSERT INTO accounts").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_federated_id_key"})

		_, err := repo.Create(ctx, "bob@example.com", &sub)
		assert.ErrorIs(t, err, ErrDuplicateFederatedID)
	})
}

func TestPostgresAccounts_Find(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresAccounts(db)
	ctx := context.Background()

	t.Run("found by email", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE email = \\$1").
			WithArgs("alice@example.com").
			WillReturnRows(sqlmock.NewRows(accountRowColumns).
				AddRow("acc-1", "alice@example.com", "$argon2id$hash", "sub-1", now, now))

		account, err := repo.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.True(t, account.HasPassword())
		assert.Equal(t, "sub-1", *account.FederatedID)
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE federated_id = \\$1").
			WithArgs("nobody").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByFederatedID(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("bind skips already bound accounts", func(t *testing.T) {
		mock.ExpectQuery("UPDATE accounts SET federated_id = \\$2, updated_at = \\$3 WHERE id = \\$1 AND federated_id IS NULL").
			WithArgs("acc-1", "sub-2", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(accountRowColumns))

		_, err := repo.BindFederatedID(ctx, "acc-1", "sub-2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPasscodes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresPasscodes(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("invalidate then create", func(t *testing.T) {
		mock.ExpectExec("UPDATE passcodes SET consumed_at = \\$3").
			WithArgs("acc-1", "signup", now).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("INSERT INTO passcodes").
			WithArgs(sqlmock.AnyArg(), "acc-1", "signup", "digest", 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.InvalidateActive(ctx, "acc-1", models.IntentSignup, now))
		record := &models.PasscodeRecord{AccountID: "acc-1", Intent: models.IntentSignup, CodeDigest: "digest", ExpiresAt: now.Add(10 * time.Minute)}
		require.NoError(t, repo.Create(ctx, record))
		assert.NotEmpty(t, record.ID)
	})

	t.Run("find active", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM passcodes WHERE account_id = \\$1 AND intent = \\$2 AND consumed_at IS NULL AND expires_at > \\$3").
			WithArgs("acc-1", "password_reset", now).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "intent", "code_digest", "attempts", "expires_at", "consumed_at", "created_at"}).
				AddRow("pc-1", "acc-1", "password_reset", "digest", 2, now.Add(time.Minute), nil, now))

		record, err := repo.FindActive(ctx, "acc-1", models.IntentPasswordReset, now)
		require.NoError(t, err)
		assert.Equal(t, models.IntentPasswordReset, record.Intent)
		assert.Equal(t, 2, record.Attempts)
		assert.Nil(t, record.ConsumedAt)
	})

	t.Run("increment attempts", func(t *testing.T) {
		mock.ExpectQuery("UPDATE passcodes SET attempts = attempts \\+ 1").
			WithArgs("pc-1").
			WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))

		attempts, err := repo.IncrementAttempts(ctx, "pc-1")
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("consume is single use", func(t *testing.T) {
		mock.ExpectExec("UPDATE passcodes SET consumed_at = \\$2 WHERE id = \\$1 AND consumed_at IS NULL").
			WithArgs("pc-1", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE passcodes SET consumed_at = \\$2 WHERE id = \\$1 AND consumed_at IS NULL").
			WithArgs("pc-1", now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, repo.Consume(ctx, "pc-1", now))
		assert.ErrorIs(t, repo.Consume(ctx, "pc-1", now), ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

var expenseRowColumns = []string{"id", "account_id", "amount", "category", "description", "expense_date", "idempotency_key", "created_at"}

func TestPostgresExpenses_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresExpenses(db)
	ctx := context.Background()

	t.Run("duplicate idempotency key", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO expenses").
			WithArgs(sqlmock.AnyArg(), "acc-1", "12.5", "Food", nil, sqlmock.AnyArg(), "key-1", sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "expenses_account_idempotency_key"})

		err := repo.Create(ctx, &models.Expense{AccountID: "acc-1", AmountCents: 1250, Category: "Food", IdempotencyKey: "key-1"})
		assert.ErrorIs(t, err, ErrDuplicateIdempotencyKey)
	})

	t.Run("other constraint errors pass through", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO expenses").
			WillReturnError(&pq.Error{Code: "23503", Constraint: "expenses_account_id_fkey"})

		err := repo.Create(ctx, &models.Expense{AccountID: "ghost", AmountCents: 100, Category: "Food", IdempotencyKey: "key-2"})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrDuplicateIdempotencyKey)
	})

	t.Run("replay lookup", func(t *testing.T) {
		day := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT (.+) FROM expenses WHERE account_id = \\$1 AND idempotency_key = \\$2").
			WithArgs("acc-1", "key-1").
			WillReturnRows(sqlmock.NewRows(expenseRowColumns).
				AddRow("exp-1", "acc-1", "12.50", "Food", "Lunch", day, "key-1", time.Now()))

		expense, err := repo.FindByIdempotencyKey(ctx, "acc-1", "key-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1250), expense.AmountCents)
		assert.Equal(t, "Lunch", *expense.Description)
		assert.Equal(t, day, expense.Date)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExpenses_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresExpenses(db)
	day := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\), COALESCE\\(SUM\\(amount\\), 0\\) FROM expenses WHERE account_id = \\$1 AND category ILIKE \\$2 AND expense_date >= \\$3 AND expense_date < \\$4").
		WithArgs("acc-1", "%50\\%%", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count", "coalesce"}).AddRow(3, "18.00"))
	mock.ExpectQuery("SELECT (.+) FROM expenses WHERE (.+) ORDER BY expense_date ASC, created_at ASC LIMIT \\$5 OFFSET \\$6").
		WithArgs("acc-1", "%50\\%%", sqlmock.AnyArg(), sqlmock.AnyArg(), 2, 2).
		WillReturnRows(sqlmock.NewRows(expenseRowColumns).
			AddRow("exp-3", "acc-1", "7.00", "50% off", nil, day, "k3", time.Now()))
	mock.ExpectCommit()

	page, err := repo.List(context.Background(), ExpenseQuery{
		AccountID: "acc-1",
		Category:  "50%",
		Year:      2026,
		Month:     2,
		Sort:      SortOldest,
		Page:      2,
		PageSize:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, int64(1800), page.TotalCents)
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.Items[0].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExpenses_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresExpenses(db)

	mock.ExpectExec("DELETE FROM expenses WHERE id = \\$1 AND account_id = \\$2").
		WithArgs("exp-1", "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM expenses WHERE id = \\$1 AND account_id = \\$2").
		WithArgs("exp-1", "owner").
		WillReturnResult(sqlmock.NewResult(0, 1))

	removed, err := repo.Delete(context.Background(), "intruder", "exp-1")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = repo.Delete(context.Background(), "owner", "exp-1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
