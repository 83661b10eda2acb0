package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"wisp/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// User is a login identity, optionally linked to a household member.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

// MovementWithPolicy pairs a movement with its category's distribution
// type, so recompute can skip policies that salaries don't affect.
type MovementWithPolicy struct {
	core.Movement
	Distribution core.DistributionType
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("user id: %w", err)
	}
	return User{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

func (r *SQLiteRepository) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// --- households and members ---

func (r *SQLiteRepository) CreateHousehold(ctx context.Context, name string) (core.Household, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO households (name) VALUES (?)`, name)
	if err != nil {
		return core.Household{}, fmt.Errorf("create household: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Household{}, fmt.Errorf("household id: %w", err)
	}
	return core.Household{ID: id, Name: name}, nil
}

func (r *SQLiteRepository) GetHousehold(ctx context.Context, id int64) (core.Household, error) {
	var h core.Household
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM households WHERE id = ?`, id).Scan(&h.ID, &h.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Household{}, fmt.Errorf("household %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Household{}, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (r *SQLiteRepository) CreateMember(ctx context.Context, m core.Member) (core.Member, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO members (name, household_id, user_id) VALUES (?, ?, ?)`,
		m.Name, nullableID(m.HouseholdID), nullableID(m.UserID))
	if err != nil {
		return core.Member{}, fmt.Errorf("create member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Member{}, fmt.Errorf("member id: %w", err)
	}
	m.ID = id
	return m, nil
}

func (r *SQLiteRepository) GetMember(ctx context.Context, id int64) (core.Member, error) {
	var m core.Member
	var household, user sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, household_id, user_id FROM members WHERE id = ?`,
		id).Scan(&m.ID, &m.Name, &household, &user)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, fmt.Errorf("member %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member: %w", err)
	}
	m.HouseholdID = household.Int64
	m.UserID = user.Int64
	return m, nil
}

func (r *SQLiteRepository) MemberByUser(ctx context.Context, userID int64) (core.Member, error) {
	var m core.Member
	var household, user sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, household_id, user_id FROM members WHERE user_id = ?`,
		userID).Scan(&m.ID, &m.Name, &household, &user)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, fmt.Errorf("member for user %d: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member by user: %w", err)
	}
	m.HouseholdID = household.Int64
	m.UserID = user.Int64
	return m, nil
}

func (r *SQLiteRepository) JoinHousehold(ctx context.Context, memberID, householdID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE members SET household_id = ? WHERE id = ?`, householdID, memberID)
	if err != nil {
		return fmt.Errorf("join household: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("join household rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("member %d: %w", memberID, core.ErrNotFound)
	}
	return nil
}

// MembersOf returns all members of a household, the directory lookup the
// distribution engine splits across.
func (r *SQLiteRepository) MembersOf(ctx context.Context, householdID int64) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, household_id, user_id FROM members WHERE household_id = ? ORDER BY id`,
		householdID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		var m core.Member
		var household, user sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Name, &household, &user); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.HouseholdID = household.Int64
		m.UserID = user.Int64
		members = append(members, m)
	}
	return members, rows.Err()
}

// --- periods ---

// GetOrCreatePeriod resolves a period token to its row, creating the row
// on first reference. Safe under concurrent callers: the UNIQUE constraint
// plus INSERT OR IGNORE makes it idempotent.
func (r *SQLiteRepository) GetOrCreatePeriod(ctx context.Context, token core.PeriodToken) (core.Period, error) {
	if err := token.Validate(); err != nil {
		return core.Period{}, err
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO periods (token) VALUES (?)`, string(token)); err != nil {
		return core.Period{}, fmt.Errorf("insert period: %w", err)
	}
	var p core.Period
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token FROM periods WHERE token = ?`, string(token)).Scan(&p.ID, &p.Token)
	if err != nil {
		return core.Period{}, fmt.Errorf("get period %s: %w", token, err)
	}
	return p, nil
}

func (r *SQLiteRepository) GetPeriod(ctx context.Context, id int64) (core.Period, error) {
	var p core.Period
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token FROM periods WHERE id = ?`, id).Scan(&p.ID, &p.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Period{}, fmt.Errorf("period %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Period{}, fmt.Errorf("get period: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListPeriods(ctx context.Context) ([]core.Period, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, token FROM periods ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	var periods []core.Period
	for rows.Next() {
		var p core.Period
		if err := rows.Scan(&p.ID, &p.Token); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, household_id, distribution_type) VALUES (?, ?, ?)`,
		c.Name, c.HouseholdID, string(c.Distribution))
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("category id: %w", err)
	}
	c.ID = id
	return c, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	var dt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, household_id, distribution_type FROM categories WHERE id = ?`,
		id).Scan(&c.ID, &c.Name, &c.HouseholdID, &dt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Distribution = core.DistributionType(dt)
	return c, nil
}

func (r *SQLiteRepository) CategoriesOf(ctx context.Context, householdID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, household_id, distribution_type FROM categories WHERE household_id = ? ORDER BY name`,
		householdID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var c core.Category
		var dt string
		if err := rows.Scan(&c.ID, &c.Name, &c.HouseholdID, &dt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Distribution = core.DistributionType(dt)
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// --- salaries ---

// UpsertSalary inserts the salary or replaces the amount of the existing
// (member, period) row. The uniqueness constraint keeps salary lookups
// unambiguous.
func (r *SQLiteRepository) UpsertSalary(ctx context.Context, s core.Salary) (core.Salary, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO salaries (member_id, period_id, amount_cents) VALUES (?, ?, ?)
		 ON CONFLICT (member_id, period_id) DO UPDATE SET amount_cents = excluded.amount_cents`,
		s.MemberID, s.PeriodID, s.Amount.Cents)
	if err != nil {
		return core.Salary{}, fmt.Errorf("upsert salary: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		s.ID = id
	}
	// On conflict LastInsertId is unreliable; fetch the canonical row.
	stored, err := r.SalaryFor(ctx, s.MemberID, s.PeriodID)
	if err != nil {
		return core.Salary{}, err
	}
	slog.InfoContext(ctx, "Salary stored",
		"member_id", stored.MemberID,
		"period_id", stored.PeriodID,
		"amount_cents", stored.Amount.Cents)
	return stored, nil
}

func (r *SQLiteRepository) SalaryFor(ctx context.Context, memberID, periodID int64) (core.Salary, error) {
	var s core.Salary
	err := r.db.QueryRowContext(ctx,
		`SELECT id, member_id, period_id, amount_cents FROM salaries WHERE member_id = ? AND period_id = ?`,
		memberID, periodID).Scan(&s.ID, &s.MemberID, &s.PeriodID, &s.Amount.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Salary{}, fmt.Errorf("salary for member %d period %d: %w", memberID, periodID, core.ErrNotFound)
	}
	if err != nil {
		return core.Salary{}, fmt.Errorf("get salary: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) SalariesFor(ctx context.Context, householdID, periodID int64) ([]core.Salary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.member_id, s.period_id, s.amount_cents
		 FROM salaries s
		 JOIN members m ON m.id = s.member_id
		 WHERE m.household_id = ? AND s.period_id = ?
		 ORDER BY s.member_id`,
		householdID, periodID)
	if err != nil {
		return nil, fmt.Errorf("list salaries: %w", err)
	}
	defer rows.Close()

	var salaries []core.Salary
	for rows.Next() {
		var s core.Salary
		if err := rows.Scan(&s.ID, &s.MemberID, &s.PeriodID, &s.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan salary: %w", err)
		}
		salaries = append(salaries, s)
	}
	return salaries, rows.Err()
}

// --- movements ---

func (r *SQLiteRepository) CreateMovement(ctx context.Context, m core.Movement) (core.Movement, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO movements (amount_cents, date, member_id, category_id, period_id, description)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.Amount.Cents, m.Date.Format(dateLayout), m.MemberID, m.CategoryID, m.PeriodID, m.Description)
	if err != nil {
		return core.Movement{}, fmt.Errorf("create movement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Movement{}, fmt.Errorf("movement id: %w", err)
	}
	m.ID = id

	slog.InfoContext(ctx, "Movement saved",
		"id", m.ID,
		"amount_cents", m.Amount.Cents,
		"member_id", m.MemberID,
		"category_id", m.CategoryID,
		"period_id", m.PeriodID)

	return m, nil
}

func (r *SQLiteRepository) GetMovement(ctx context.Context, id int64) (core.Movement, error) {
	var m core.Movement
	var date string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, amount_cents, date, member_id, category_id, period_id, description
		 FROM movements WHERE id = ?`,
		id).Scan(&m.ID, &m.Amount.Cents, &date, &m.MemberID, &m.CategoryID, &m.PeriodID, &m.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Movement{}, fmt.Errorf("movement %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Movement{}, fmt.Errorf("get movement: %w", err)
	}
	m.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return core.Movement{}, fmt.Errorf("parse movement date: %w", err)
	}
	return m, nil
}

// DeleteMovement removes a movement and, via cascade, any distribution
// rows it still has. Used to roll back a movement whose split failed.
func (r *SQLiteRepository) DeleteMovement(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM movements WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete movement: %w", err)
	}
	return nil
}

// MovementsFor returns a household's movements in a period together with
// each movement's category policy.
func (r *SQLiteRepository) MovementsFor(ctx context.Context, householdID, periodID int64) ([]MovementWithPolicy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT mv.id, mv.amount_cents, mv.date, mv.member_id, mv.category_id, mv.period_id, mv.description,
		        c.distribution_type
		 FROM movements mv
		 JOIN categories c ON c.id = mv.category_id
		 WHERE c.household_id = ? AND mv.period_id = ?
		 ORDER BY mv.id`,
		householdID, periodID)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var movements []MovementWithPolicy
	for rows.Next() {
		var m MovementWithPolicy
		var date, dt string
		if err := rows.Scan(&m.ID, &m.Amount.Cents, &date, &m.MemberID, &m.CategoryID,
			&m.PeriodID, &m.Description, &dt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Date, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parse movement date: %w", err)
		}
		m.Distribution = core.DistributionType(dt)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// --- distributions ---

// ReplaceDistributions swaps a movement's distribution batch in one
// transaction: delete the old rows, insert the new ones. Readers never see
// a partial batch, and re-running with the same rows is idempotent.
func (r *SQLiteRepository) ReplaceDistributions(ctx context.Context, movementID int64, rows []core.Distribution) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin distribution swap: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM distributions WHERE movement_id = ?`, movementID); err != nil {
		return fmt.Errorf("delete old distributions: %w", err)
	}

	for _, d := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO distributions (movement_id, member_id, amount_cents, is_payer)
			 VALUES (?, ?, ?, ?)`,
			movementID, d.MemberID, d.Amount.Cents, boolToInt(d.IsPayer)); err != nil {
			return fmt.Errorf("insert distribution for member %d: %w", d.MemberID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit distribution swap: %w", err)
	}

	slog.InfoContext(ctx, "Distribution batch replaced",
		"movement_id", movementID,
		"rows", len(rows))

	return nil
}

func (r *SQLiteRepository) DistributionsFor(ctx context.Context, movementID int64) ([]core.Distribution, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, movement_id, member_id, amount_cents, is_payer
		 FROM distributions WHERE movement_id = ? ORDER BY member_id`,
		movementID)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var dists []core.Distribution
	for rows.Next() {
		var d core.Distribution
		var isPayer int
		if err := rows.Scan(&d.ID, &d.MovementID, &d.MemberID, &d.Amount.Cents, &isPayer); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		d.IsPayer = isPayer != 0
		dists = append(dists, d)
	}
	return dists, rows.Err()
}

// --- balance sums (always computed live, never denormalized) ---

// OwedBetween sums what debtor owes creditor: distribution rows of the
// debtor, on movements the creditor paid, excluding the creditor's own
// payer rows.
func (r *SQLiteRepository) OwedBetween(ctx context.Context, debtorID, creditorID int64) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(d.amount_cents)
		 FROM distributions d
		 JOIN movements mv ON mv.id = d.movement_id
		 WHERE d.member_id = ? AND mv.member_id = ? AND d.is_payer = 0`,
		debtorID, creditorID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum owed between members: %w", err)
	}
	return total.Int64, nil
}

func (r *SQLiteRepository) TotalPaid(ctx context.Context, memberID int64) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(amount_cents) FROM movements WHERE member_id = ?`,
		memberID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum paid: %w", err)
	}
	return total.Int64, nil
}

func (r *SQLiteRepository) TotalOwed(ctx context.Context, memberID int64) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(amount_cents) FROM distributions WHERE member_id = ?`,
		memberID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum owed: %w", err)
	}
	return total.Int64, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
