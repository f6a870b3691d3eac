package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flowedit/internal/domain"
)

// SolutionStore implements domain.SolutionStore on any supported SQL dialect.
type SolutionStore struct {
	db *DB
}

func NewSolutionStore(db *DB) *SolutionStore {
	return &SolutionStore{db: db}
}

var _ domain.SolutionStore = (*SolutionStore)(nil)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SolutionStore) q(query string) string { return s.db.dialect.Rebind(query) }

// inTx runs fn in a transaction, rolling back on error.
func (s *SolutionStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ── Solutions ──────────────────────────────────────────────

func (s *SolutionStore) CreateSolution(ctx context.Context, name string) (*domain.Solution, error) {
	sol := &domain.Solution{Name: name, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.solutionExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("create solution %q: %w", name, domain.ErrSolutionExists)
		}
		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO solutions (name, created_at, updated_at) VALUES (?, ?, ?)`),
			sol.Name, sol.CreatedAt, sol.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create solution: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sol, nil
}

func (s *SolutionStore) solutionExists(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM solutions WHERE name = ?`), name).Scan(&n); err != nil {
		return false, fmt.Errorf("check solution: %w", err)
	}
	return n > 0, nil
}

func (s *SolutionStore) LoadSolution(ctx context.Context, name string) (*domain.Solution, error) {
	sol := &domain.Solution{}
	err := s.db.conn.QueryRowContext(ctx,
		s.q(`SELECT name, created_at, updated_at FROM solutions WHERE name = ?`), name,
	).Scan(&sol.Name, &sol.CreatedAt, &sol.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load solution %q: %w", name, domain.ErrSolutionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load solution: %w", err)
	}

	states, err := s.loadStates(ctx, name)
	if err != nil {
		return nil, err
	}
	sol.States = states
	if sol.Connectors, err = s.loadConnectors(ctx, name); err != nil {
		return nil, err
	}
	return sol, nil
}

func (s *SolutionStore) loadStates(ctx context.Context, solution string) ([]domain.State, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.q(
		`SELECT name, kind, x, y, radius, width, height, half_diagonal, corner_radius, style_json
		 FROM states WHERE solution = ? ORDER BY sort_order ASC, name ASC`), solution)
	if err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}
	defer rows.Close()

	var states []domain.State
	pos := make(map[string]int)
	for rows.Next() {
		var st domain.State
		var kind, style string
		if err := rows.Scan(&st.Name, &kind, &st.X, &st.Y, &st.Radius, &st.Width, &st.Height,
			&st.HalfDiagonal, &st.CornerRadius, &style); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		st.Kind = domain.ShapeKind(kind)
		if style != "" && style != "{}" {
			if err := json.Unmarshal([]byte(style), &st.Style); err != nil {
				return nil, fmt.Errorf("decode style of %q: %w", st.Name, err)
			}
		}
		pos[st.Name] = len(states)
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slotRows, err := s.db.conn.QueryContext(ctx, s.q(
		`SELECT state, idx, is_input, is_output, angle, color, label
		 FROM slots WHERE solution = ? ORDER BY state ASC, idx ASC`), solution)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var sl domain.Slot
		var in, out int
		if err := slotRows.Scan(&sl.State, &sl.Index, &in, &out, &sl.Angle, &sl.Color, &sl.Label); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		sl.Input, sl.Output = in != 0, out != 0
		if i, ok := pos[sl.State]; ok {
			states[i].Slots = append(states[i].Slots, sl)
		}
	}
	return states, slotRows.Err()
}

func (s *SolutionStore) loadConnectors(ctx context.Context, solution string) ([]domain.Connector, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.q(
		`SELECT id, source_state, source_slot, sink_state, sink_slot
		 FROM connectors WHERE solution = ? ORDER BY sort_order ASC, id ASC`), solution)
	if err != nil {
		return nil, fmt.Errorf("load connectors: %w", err)
	}
	defer rows.Close()

	var out []domain.Connector
	for rows.Next() {
		var c domain.Connector
		if err := rows.Scan(&c.ID, &c.SourceState, &c.SourceSlot, &c.SinkState, &c.SinkSlot); err != nil {
			return nil, fmt.Errorf("scan connector: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SolutionStore) ListSolutions(ctx context.Context) ([]domain.SolutionSummary, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT s.name, s.updated_at, (SELECT COUNT(*) FROM states st WHERE st.solution = s.name)
		 FROM solutions s ORDER BY s.updated_at DESC, s.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}
	defer rows.Close()

	var out []domain.SolutionSummary
	for rows.Next() {
		var sum domain.SolutionSummary
		if err := rows.Scan(&sum.Name, &sum.UpdatedAt, &sum.StateCount); err != nil {
			return nil, fmt.Errorf("scan solution: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// SaveSolution replaces the stored content of sol, creating it if needed.
func (s *SolutionStore) SaveSolution(ctx context.Context, sol *domain.Solution) error {
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.solutionExists(ctx, tx, sol.Name)
		if err != nil {
			return err
		}
		if exists {
			_, err = tx.ExecContext(ctx, s.q(`UPDATE solutions SET updated_at = ? WHERE name = ?`), now, sol.Name)
		} else {
			created := sol.CreatedAt
			if created.IsZero() {
				created = now
			}
			_, err = tx.ExecContext(ctx, s.q(`INSERT INTO solutions (name, created_at, updated_at) VALUES (?, ?, ?)`),
				sol.Name, created, now)
		}
		if err != nil {
			return fmt.Errorf("save solution: %w", err)
		}
		if err := s.deleteContent(ctx, tx, sol.Name); err != nil {
			return err
		}
		for i := range sol.States {
			if err := s.insertState(ctx, tx, sol.Name, &sol.States[i], i); err != nil {
				return err
			}
		}
		for i := range sol.Connectors {
			if err := s.insertConnector(ctx, tx, sol.Name, &sol.Connectors[i], i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SolutionStore) DeleteSolution(ctx context.Context, name string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.deleteContent(ctx, tx, name); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM solutions WHERE name = ?`), name)
		if err != nil {
			return fmt.Errorf("delete solution: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("delete solution %q: %w", name, domain.ErrSolutionNotFound)
		}
		return nil
	})
}

func (s *SolutionStore) deleteContent(ctx context.Context, tx *sql.Tx, solution string) error {
	for _, table := range []string{"connectors", "slots", "states"} {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+table+` WHERE solution = ?`), solution); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

func (s *SolutionStore) insertState(ctx context.Context, q querier, solution string, st *domain.State, order int) error {
	style := "{}"
	if len(st.Style) > 0 {
		b, err := json.Marshal(st.Style)
		if err != nil {
			return fmt.Errorf("encode style of %q: %w", st.Name, err)
		}
		style = string(b)
	}
	_, err := q.ExecContext(ctx, s.q(
		`INSERT INTO states (solution, name, kind, x, y, radius, width, height, half_diagonal, corner_radius, style_json, sort_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		solution, st.Name, string(st.Kind), st.X, st.Y, st.Radius, st.Width, st.Height, st.HalfDiagonal, st.CornerRadius, style, order,
	)
	if err != nil {
		return fmt.Errorf("insert state %q: %w", st.Name, err)
	}
	for _, sl := range st.Slots {
		_, err := q.ExecContext(ctx, s.q(
			`INSERT INTO slots (solution, state, idx, is_input, is_output, angle, color, label) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			solution, st.Name, sl.Index, boolInt(sl.Input), boolInt(sl.Output), domain.NormalizeAngle(sl.Angle), sl.Color, sl.Label,
		)
		if err != nil {
			return fmt.Errorf("insert slot %s/%d: %w", st.Name, sl.Index, err)
		}
	}
	return nil
}

func (s *SolutionStore) insertConnector(ctx context.Context, q querier, solution string, c *domain.Connector, order int) error {
	_, err := q.ExecContext(ctx, s.q(
		`INSERT INTO connectors (solution, id, source_state, source_slot, sink_state, sink_slot, sort_order) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		solution, c.ID, c.SourceState, c.SourceSlot, c.SinkState, c.SinkSlot, order,
	)
	if err != nil {
		return fmt.Errorf("insert connector %q: %w", c.ID, err)
	}
	return nil
}

func (s *SolutionStore) touch(ctx context.Context, q querier, solution string) error {
	res, err := q.ExecContext(ctx, s.q(`UPDATE solutions SET updated_at = ? WHERE name = ?`), time.Now().UTC(), solution)
	if err != nil {
		return fmt.Errorf("touch solution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("solution %q: %w", solution, domain.ErrSolutionNotFound)
	}
	return nil
}

// ── States ─────────────────────────────────────────────────

// UpsertState replaces a state and its slots, keeping its position in the
// solution order.
func (s *SolutionStore) UpsertState(ctx context.Context, solution string, st *domain.State) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, solution); err != nil {
			return err
		}
		var order int
		err := tx.QueryRowContext(ctx, s.q(`SELECT sort_order FROM states WHERE solution = ? AND name = ?`),
			solution, st.Name).Scan(&order)
		if errors.Is(err, sql.ErrNoRows) {
			err = tx.QueryRowContext(ctx, s.q(`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM states WHERE solution = ?`),
				solution).Scan(&order)
		}
		if err != nil {
			return fmt.Errorf("upsert state order: %w", err)
		}
		if err := s.deleteState(ctx, tx, solution, st.Name); err != nil {
			return err
		}
		return s.insertState(ctx, tx, solution, st, order)
	})
}

func (s *SolutionStore) deleteState(ctx context.Context, q querier, solution, name string) error {
	if _, err := q.ExecContext(ctx, s.q(`DELETE FROM slots WHERE solution = ? AND state = ?`), solution, name); err != nil {
		return fmt.Errorf("delete slots: %w", err)
	}
	if _, err := q.ExecContext(ctx, s.q(`DELETE FROM states WHERE solution = ? AND name = ?`), solution, name); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// RemoveState deletes a state, its slots and every connector touching it.
func (s *SolutionStore) RemoveState(ctx context.Context, solution, state string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, solution); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(
			`DELETE FROM connectors WHERE solution = ? AND (source_state = ? OR sink_state = ?)`),
			solution, state, state); err != nil {
			return fmt.Errorf("delete connectors: %w", err)
		}
		return s.deleteState(ctx, tx, solution, state)
	})
}

func (s *SolutionStore) UpdateStatePosition(ctx context.Context, solution, state string, x, y float64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, solution); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`UPDATE states SET x = ?, y = ? WHERE solution = ? AND name = ?`),
			x, y, solution, state)
		if err != nil {
			return fmt.Errorf("update state position: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update state position %q: %w", state, domain.ErrStateNotFound)
		}
		return nil
	})
}

func (s *SolutionStore) UpdateSlotAngle(ctx context.Context, solution, state string, slot int, angle float64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, solution); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`UPDATE slots SET angle = ? WHERE solution = ? AND state = ? AND idx = ?`),
			domain.NormalizeAngle(angle), solution, state, slot)
		if err != nil {
			return fmt.Errorf("update slot angle: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update slot angle %s/%d: %w", state, slot, domain.ErrSlotNotFound)
		}
		return nil
	})
}

// ── Connectors ─────────────────────────────────────────────

func (s *SolutionStore) AddConnector(ctx context.Context, solution string, c *domain.Connector) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, solution); err != nil {
			return err
		}
		var order int
		if err := tx.QueryRowContext(ctx, s.q(`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM connectors WHERE solution = ?`),
			solution).Scan(&order); err != nil {
			return fmt.Errorf("connector order: %w", err)
		}
		return s.insertConnector(ctx, tx, solution, c, order)
	})
}

func (s *SolutionStore) RemoveConnector(ctx context.Context, solution, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, solution); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM connectors WHERE solution = ? AND id = ?`), solution, id); err != nil {
			return fmt.Errorf("delete connector: %w", err)
		}
		return nil
	})
}

// PruneOrphanConnectors deletes connectors with an endpoint slot that no
// longer exists and returns how many were removed.
func (s *SolutionStore) PruneOrphanConnectors(ctx context.Context, solution string) (int, error) {
	res, err := s.db.conn.ExecContext(ctx, s.q(
		`DELETE FROM connectors WHERE solution = ? AND (
			NOT EXISTS (SELECT 1 FROM slots sl WHERE sl.solution = connectors.solution
				AND sl.state = connectors.source_state AND sl.idx = connectors.source_slot)
			OR NOT EXISTS (SELECT 1 FROM slots sl WHERE sl.solution = connectors.solution
				AND sl.state = connectors.sink_state AND sl.idx = connectors.sink_slot)
		)`), solution)
	if err != nil {
		return 0, fmt.Errorf("prune connectors: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
