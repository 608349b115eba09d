package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/money"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// Constraint names declared in database/schema.sql.
const (
	constraintAccountEmail       = "accounts_email_key"
	constraintAccountFederatedID = "accounts_federated_id_key"
	constraintExpenseIdempotency = "expenses_account_idempotency_key"
)

// mapUniqueViolation turns a Postgres unique violation into the sentinel for
// the violated constraint. Other errors pass through untouched.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case constraintAccountEmail:
		return ErrDuplicateEmail
	case constraintAccountFederatedID:
		return ErrDuplicateFederatedID
	case constraintExpenseIdempotency:
		return ErrDuplicateIdempotencyKey
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = "id, email, password_hash, federated_id, created_at, updated_at"

// PostgresAccounts is the Postgres AccountRepository.
type PostgresAccounts struct {
	db *sql.DB
}

func NewPostgresAccounts(db *sql.DB) *PostgresAccounts {
	return &PostgresAccounts{db: db}
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account      models.Account
		passwordHash sql.NullString
		federatedID  sql.NullString
	)
	err := row.Scan(&account.ID, &account.Email, &passwordHash, &federatedID, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if passwordHash.Valid {
		account.PasswordHash = &passwordHash.String
	}
	if federatedID.Valid {
		account.FederatedID = &federatedID.String
	}
	return &account, nil
}

func (r *PostgresAccounts) Create(ctx context.Context, email string, federatedID *string) (*models.Account, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, email, federated_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING `+accountColumns,
		uuid.NewString(), email, federatedID, now)

	account, err := scanAccount(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return account, nil
}

func (r *PostgresAccounts) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *PostgresAccounts) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (r *PostgresAccounts) FindByFederatedID(ctx context.Context, federatedID string) (*models.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE federated_id = $1`, federatedID))
}

func (r *PostgresAccounts) UpdatePassword(ctx context.Context, id, passwordHash string) (*models.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+accountColumns,
		id, passwordHash, time.Now().UTC()))
}

func (r *PostgresAccounts) BindFederatedID(ctx context.Context, id, federatedID string) (*models.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, `
		UPDATE accounts SET federated_id = $2, updated_at = $3
		WHERE id = $1 AND federated_id IS NULL
		RETURNING `+accountColumns,
		id, federatedID, time.Now().UTC()))
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return account, nil
}

const passcodeColumns = "id, account_id, intent, code_digest, attempts, expires_at, consumed_at, created_at"

// PostgresPasscodes is the Postgres PasscodeRepository.
type PostgresPasscodes struct {
	db *sql.DB
}

func NewPostgresPasscodes(db *sql.DB) *PostgresPasscodes {
	return &PostgresPasscodes{db: db}
}

func (r *PostgresPasscodes) InvalidateActive(ctx context.Context, accountID string, intent models.PasscodeIntent, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE passcodes SET consumed_at = $3
		WHERE account_id = $1 AND intent = $2 AND consumed_at IS NULL`,
		accountID, string(intent), now)
	return err
}

func (r *PostgresPasscodes) Create(ctx context.Context, record *models.PasscodeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO passcodes (id, account_id, intent, code_digest, attempts, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.AccountID, string(record.Intent), record.CodeDigest, record.Attempts, record.ExpiresAt, record.CreatedAt)
	return err
}

func (r *PostgresPasscodes) FindActive(ctx context.Context, accountID string, intent models.PasscodeIntent, now time.Time) (*models.PasscodeRecord, error) {
	var (
		record     models.PasscodeRecord
		rawIntent  string
		consumedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT `+passcodeColumns+`
		FROM passcodes
		WHERE account_id = $1 AND intent = $2 AND consumed_at IS NULL AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`,
		accountID, string(intent), now).
		Scan(&record.ID, &record.AccountID, &rawIntent, &record.CodeDigest, &record.Attempts, &record.ExpiresAt, &consumedAt, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record.Intent = models.PasscodeIntent(rawIntent)
	if consumedAt.Valid {
		record.ConsumedAt = &consumedAt.Time
	}
	return &record, nil
}

func (r *PostgresPasscodes) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE passcodes SET attempts = attempts + 1
		WHERE id = $1 AND consumed_at IS NULL
		RETURNING attempts`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return attempts, err
}

func (r *PostgresPasscodes) Consume(ctx context.Context, id string, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE passcodes SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL`, id, now)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const expenseColumns = "id, account_id, amount, category, description, expense_date, idempotency_key, created_at"

// PostgresExpenses is the Postgres ExpenseRepository.
type PostgresExpenses struct {
	db *sql.DB
}

func NewPostgresExpenses(db *sql.DB) *PostgresExpenses {
	return &PostgresExpenses{db: db}
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	var (
		expense     models.Expense
		amount      decimal.Decimal
		description sql.NullString
	)
	err := row.Scan(&expense.ID, &expense.AccountID, &amount, &expense.Category, &description,
		&expense.Date, &expense.IdempotencyKey, &expense.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expense.AmountCents, err = money.FromDecimal(amount); err != nil {
		return nil, fmt.Errorf("expense %s: %w", expense.ID, err)
	}
	if description.Valid {
		expense.Description = &description.String
	}
	expense.Date = models.DateOnly(expense.Date)
	return &expense, nil
}

func (r *PostgresExpenses) Create(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		expense.ID, expense.AccountID, money.ToDecimal(expense.AmountCents), expense.Category,
		expense.Description, models.DateOnly(expense.Date), expense.IdempotencyKey, expense.CreatedAt)
	return mapUniqueViolation(err)
}

func (r *PostgresExpenses) FindByIdempotencyKey(ctx context.Context, accountID, key string) (*models.Expense, error) {
	return scanExpense(r.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE account_id = $1 AND idempotency_key = $2`, accountID, key))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *PostgresExpenses) List(ctx context.Context, query ExpenseQuery) (*ExpensePage, error) {
	conditions := []string{"account_id = $1"}
	args := []any{query.AccountID}
	if query.Category != "" {
		args = append(args, "%"+escapeLike(query.Category)+"%")
		conditions = append(conditions, fmt.Sprintf("category ILIKE $%d", len(args)))
	}
	if from, to, ok := query.DateRange(); ok {
		args = append(args, from, to)
		conditions = append(conditions,
			fmt.Sprintf("expense_date >= $%d", len(args)-1),
			fmt.Sprintf("expense_date < $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	order := "expense_date DESC, created_at DESC"
	if query.Sort == SortOldest {
		order = "expense_date ASC, created_at ASC"
	}

	// Page and aggregates come from one snapshot.
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		page  ExpensePage
		total decimal.Decimal
	)
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM expenses WHERE `+where, args...).
		Scan(&page.TotalItems, &total)
	if err != nil {
		return nil, err
	}
	page.TotalCents = total.Shift(2).IntPart()

	pageArgs := append(append([]any{}, args...), query.PageSize, query.Offset())
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM expenses WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		expenseColumns, where, order, len(pageArgs)-1, len(pageArgs)), pageArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &page, tx.Commit()
}

func (r *PostgresExpenses) Delete(ctx context.Context, accountID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
