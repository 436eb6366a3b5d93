package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/store"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// table describes how one collection maps onto SQL.
type table struct {
	name    string
	columns string
	hasRole bool
	scan    func(scannable) (model.Record, error)
}

var tables = map[model.Collection]table{
	model.CollectionSubtopics: {
		name:    "subtopics",
		columns: subtopicColumns,
		scan:    func(r scannable) (model.Record, error) { return scanSubtopic(r) },
	},
	model.CollectionProposals: {
		name:    "proposals",
		columns: proposalColumns,
		hasRole: true,
		scan:    func(r scannable) (model.Record, error) { return scanProposal(r) },
	},
	model.CollectionJudgments: {
		name:    "judgments",
		columns: judgmentColumns,
		scan:    func(r scannable) (model.Record, error) { return scanJudgment(r) },
	},
	model.CollectionTimeline: {
		name:    "timeline",
		columns: timelineColumns,
		scan:    func(r scannable) (model.Record, error) { return scanTimelineEvent(r) },
	},
}

func tableFor(coll model.Collection) (table, error) {
	t, ok := tables[coll]
	if !ok {
		return table{}, fmt.Errorf("unknown collection %q", coll)
	}
	return t, nil
}

// mapInsertErr turns unique violations into store.ErrDuplicate.
func mapInsertErr(coll model.Collection, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("insert %s: %s: %w", coll, pqErr.Constraint, store.ErrDuplicate)
	}
	return fmt.Errorf("insert %s: %w", coll, err)
}

func queryInsert(ctx context.Context, db executor, rec model.Record) error {
	var err error
	switch r := rec.(type) {
	case *model.Subtopic:
		_, err = db.ExecContext(ctx, `
			INSERT INTO subtopics (`+subtopicColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, r.UniverseID, r.DayIndex, r.SelectedSubtopic, r.Reason,
			pq.Array(nonNilStrings(r.Tags)), r.CreatedAt,
		)
	case *model.Proposal:
		_, err = db.ExecContext(ctx, `
			INSERT INTO proposals (`+proposalColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, r.UniverseID, r.DayIndex, string(r.Role), r.Subtopic,
			payloadBytes(r.Payload), r.CreatedAt,
		)
	case *model.Judgment:
		_, err = db.ExecContext(ctx, `
			INSERT INTO judgments (`+judgmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, r.UniverseID, r.DayIndex, r.Decision, r.Reason, r.CreatedAt,
		)
	case *model.TimelineEvent:
		_, err = db.ExecContext(ctx, `
			INSERT INTO timeline (`+timelineColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, r.UniverseID, r.DayIndex, r.Subtopic, payloadBytes(r.Event), r.CreatedAt,
		)
	default:
		return fmt.Errorf("insert: unsupported record type %T", rec)
	}
	return mapInsertErr(rec.RecordCollection(), err)
}

// buildWhere renders the filter as a WHERE clause with positional args.
func buildWhere(t table, filter model.Filter) (string, []any) {
	clauses := []string{"universe_id = $1"}
	args := []any{filter.UniverseID}

	if filter.DayIndex != 0 {
		args = append(args, filter.DayIndex)
		clauses = append(clauses, fmt.Sprintf("day_index = $%d", len(args)))
	}
	if filter.Role != "" && t.hasRole {
		args = append(args, string(filter.Role))
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// orderClause orders by day, with role as the tiebreaker for proposals.
func orderClause(t table, sort model.SortOrder) string {
	dir := "DESC"
	if sort == model.SortAsc {
		dir = "ASC"
	}
	clause := " ORDER BY day_index " + dir
	if t.hasRole {
		clause += ", role ASC"
	}
	return clause
}

func queryFind(ctx context.Context, db executor, coll model.Collection, filter model.Filter, sort model.SortOrder, skip, limit int) ([]model.Record, error) {
	t, err := tableFor(coll)
	if err != nil {
		return nil, err
	}
	where, args := buildWhere(t, filter)
	q := "SELECT " + t.columns + " FROM " + t.name + where + orderClause(t, sort)

	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if skip > 0 {
		args = append(args, skip)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}
	defer rows.Close()

	recs := []model.Record{}
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", coll, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", coll, err)
	}
	return recs, nil
}

func queryFindOne(ctx context.Context, db executor, coll model.Collection, filter model.Filter, sort model.SortOrder) (model.Record, error) {
	t, err := tableFor(coll)
	if err != nil {
		return nil, err
	}
	where, args := buildWhere(t, filter)
	row := db.QueryRowContext(ctx, "SELECT "+t.columns+" FROM "+t.name+where+orderClause(t, sort)+" LIMIT 1", args...)
	rec, err := t.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one %s: %w", coll, err)
	}
	return rec, nil
}

func queryDeleteMany(ctx context.Context, db executor, coll model.Collection, filter model.Filter) (int64, error) {
	t, err := tableFor(coll)
	if err != nil {
		return 0, err
	}
	where, args := buildWhere(t, filter)
	res, err := db.ExecContext(ctx, "DELETE FROM "+t.name+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", coll, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", coll, err)
	}
	return n, nil
}

func queryGetUniverse(ctx context.Context, db executor, id string) (*model.Universe, error) {
	row := db.QueryRowContext(ctx, `SELECT `+universeColumns+` FROM universes WHERE id = $1`, id)
	u, err := scanUniverse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get universe: %w", err)
	}
	return u, nil
}

// queryEnsureUniverse inserts the universe if absent. Uses
// INSERT...ON CONFLICT DO NOTHING so an existing seed is never replaced.
func queryEnsureUniverse(ctx context.Context, db executor, u *model.Universe) (*model.Universe, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO universes (id, title, seed, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Title, jsonbBytes(u.Seed), nullTime(u.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("ensure universe: %w", err)
	}
	return queryGetUniverse(ctx, db, u.ID)
}
