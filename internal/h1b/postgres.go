package h1b

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/offersplus/backend/internal/db"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// recordColumns is the select list for Record, in scan order. Text casts
// keep scanning independent of the column types a deployment chose.
const recordColumns = `id, case_number::text, case_status::text, received_date::text, decision_date::text,
	visa_class::text, job_title::text, soc_code::text, soc_title::text, full_time_position::text,
	begin_date::text, end_date::text, employer_name::text, employer_city::text, employer_state::text,
	employer_postal_code::text, worksite_city::text, worksite_state::text, worksite_postal_code::text,
	wage_rate_of_pay_from::float8, wage_rate_of_pay_to::float8, wage_unit_of_pay::text,
	prevailing_wage::float8, created_at::text, updated_at::text`

// PostgresSource queries the H1B table directly.
type PostgresSource struct {
	db    *sql.DB
	table string
}

// NewPostgresSource returns a source reading table through conn. An empty
// table name means the default.
func NewPostgresSource(conn *sql.DB, table string) (*PostgresSource, error) {
	if table == "" {
		table = Table
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return &PostgresSource{db: conn, table: strings.Join(parts, ".")}, nil
}

// whereClause renders f as a parameterized WHERE clause.
func whereClause(f Filters) (string, []any) {
	f = f.Normalize()
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Employer != "" {
		conds = append(conds, "employer_name ILIKE "+arg(likePattern(f.Employer)))
	}
	if f.Status != "" {
		conds = append(conds, "case_status = "+arg(f.Status))
	}
	if f.JobTitle != "" {
		conds = append(conds, "job_title ILIKE "+arg(likePattern(f.JobTitle)))
	}
	if f.MinSalary != nil {
		conds = append(conds, "wage_rate_of_pay_from >= "+arg(*f.MinSalary))
	}
	if f.MaxSalary != nil {
		conds = append(conds, "wage_rate_of_pay_from <= "+arg(*f.MaxSalary))
	}
	if f.SearchTerm != "" {
		p := arg(likePattern(f.SearchTerm))
		conds = append(conds, fmt.Sprintf("(employer_name ILIKE %[1]s OR job_title ILIKE %[1]s OR case_number ILIKE %[1]s)", p))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string { return "%" + likeEscaper.Replace(s) + "%" }

func (s *PostgresSource) QueryPage(ctx context.Context, f Filters, p Pagination) (res PaginatedResult[Record], err error) {
	defer func(start time.Time) { db.Observe("h1b_query_page", start, err) }(time.Now())
	p = p.Clamp()
	where, args := whereClause(f)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table+where, args...).Scan(&total); err != nil {
		return res, fmt.Errorf("count h1b applications: %w", err)
	}
	if total == 0 {
		return EmptyPage[Record](p), nil
	}

	dir := "DESC"
	if p.Ascending() {
		dir = "ASC"
	}
	order := pq.QuoteIdentifier(p.SortBy) + " " + dir
	if p.SortBy != "id" {
		order += ", id " + dir
	}
	n := len(args)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		recordColumns, s.table, where, order, n+1, n+2)
	rows, err := s.queryRecords(ctx, query, append(args, p.PageSize, p.Offset())...)
	if err != nil {
		return res, fmt.Errorf("query h1b applications: %w", err)
	}
	return NewPaginatedResult(rows, total, p), nil
}

func (s *PostgresSource) Distinct(ctx context.Context, field Field, limit int) (out []string, err error) {
	defer func(start time.Time) { db.Observe("h1b_distinct", start, err) }(time.Now())
	if _, err := ParseField(string(field)); err != nil {
		return nil, err
	}
	col := pq.QuoteIdentifier(string(field))
	query := fmt.Sprintf("SELECT DISTINCT %[1]s::text FROM %[2]s WHERE %[1]s IS NOT NULL AND %[1]s::text <> '' ORDER BY 1", col, s.table)
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	defer rows.Close()
	out = []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct %s: %w", field, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	return out, nil
}

func (s *PostgresSource) Sample(ctx context.Context, f Filters, limit int) (out []Record, err error) {
	defer func(start time.Time) { db.Observe("h1b_sample", start, err) }(time.Now())
	where, args := whereClause(f)
	query := fmt.Sprintf("SELECT %s FROM %s%s", recordColumns, s.table, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}
	out, err = s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sample h1b applications: %w", err)
	}
	return out, nil
}

func (s *PostgresSource) Export(ctx context.Context, f Filters, limit int) (out []Record, err error) {
	defer func(start time.Time) { db.Observe("h1b_export", start, err) }(time.Now())
	where, args := whereClause(f)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id DESC", recordColumns, s.table, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}
	out, err = s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("export h1b applications: %w", err)
	}
	return out, nil
}

func (s *PostgresSource) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r       Record
		text    [21]sql.NullString
		from    sql.NullFloat64
		to      sql.NullFloat64
		prevail sql.NullFloat64
	)
	err := rows.Scan(&r.ID,
		&text[0], &text[1], &text[2], &text[3], &text[4], &text[5], &text[6], &text[7], &text[8],
		&text[9], &text[10], &text[11], &text[12], &text[13], &text[14], &text[15], &text[16], &text[17],
		&from, &to, &text[18], &prevail, &text[19], &text[20])
	if err != nil {
		return r, fmt.Errorf("scan h1b row: %w", err)
	}
	dst := []*string{
		&r.CaseNumber, &r.CaseStatus, &r.ReceivedDate, &r.DecisionDate, &r.VisaClass, &r.JobTitle,
		&r.SOCCode, &r.SOCTitle, &r.FullTimePosition, &r.BeginDate, &r.EndDate, &r.EmployerName,
		&r.EmployerCity, &r.EmployerState, &r.EmployerPostalCode, &r.WorksiteCity, &r.WorksiteState,
		&r.WorksitePostalCode, &r.WageUnitOfPay, &r.CreatedAt, &r.UpdatedAt,
	}
	for i, d := range dst {
		*d = text[i].String
	}
	r.WageRateOfPayFrom = nullFloat(from)
	r.WageRateOfPayTo = nullFloat(to)
	r.PrevailingWage = nullFloat(prevail)
	return r, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
