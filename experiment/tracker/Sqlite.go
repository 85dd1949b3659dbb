package tracker

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	ts "deeprl/timestep"
)

// SQLiteReturn tracks the episodic return in an experiment and saves
// it to a SQLite database instead of a gob file. Each SQLiteReturn is
// assigned a unique run ID when created, so that many runs of an
// experiment can share a single database and be queried separately
// afterwards.
//
// Like the Return Tracker, an episode must finish for its return to
// be saved.
type SQLiteReturn struct {
	runID          string
	tag            string
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
	path           string
}

// NewSQLiteReturn creates and returns a new *SQLiteReturn Tracker
// which saves episodic returns to the SQLite database at path. The
// tag parameter labels the run in the database, e.g. with the agent
// and environment names.
func NewSQLiteReturn(path, tag string) Tracker {
	return &SQLiteReturn{
		runID:        uuid.New().String(),
		tag:          tag,
		lastTimeStep: -1,
		path:         path,
	}
}

// RunID returns the unique ID under which the tracked data is stored
func (s *SQLiteReturn) RunID() string {
	return s.runID
}

// Track tracks the rewards seen on a timestep, accumulating the
// episodic return. Track panics if it is called for non-sequential
// timesteps.
func (s *SQLiteReturn) Track(step ts.TimeStep) {
	if s.lastTimeStep+1 != step.Number {
		msg := fmt.Sprintf("warning: last two timesteps tracked are not"+
			"sequential: timestep %v --> timestep %v were tracked",
			s.lastTimeStep, step.Number)
		panic(msg)
	}

	s.currentReturn += step.Reward
	if !step.Last() {
		s.lastTimeStep = step.Number
	} else {
		s.episodeReturns = append(s.episodeReturns, s.currentReturn)
		s.currentReturn = 0.0
		s.lastTimeStep = -1
	}
}

// Save saves the data tracked by the SQLiteReturn Tracker to its
// database, creating the database and its tables if needed. All
// episodic returns of the run are written in a single transaction.
func (s *SQLiteReturn) Save() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("save: could not open database: %v", err)
	}
	defer db.Close()

	if err := createTables(db); err != nil {
		return fmt.Errorf("save: could not create tables: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("save: could not begin transaction: %v", err)
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, tag)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET tag = excluded.tag
	`, s.runID, s.tag)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save: could not record run: %v", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO episode_returns (run_id, episode, ret)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, episode) DO UPDATE SET ret = excluded.ret
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save: could not prepare insert: %v", err)
	}
	defer stmt.Close()

	for episode, ret := range s.episodeReturns {
		if _, err := stmt.Exec(s.runID, episode, ret); err != nil {
			tx.Rollback()
			return fmt.Errorf("save: could not record return: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save: could not commit returns: %v", err)
	}
	return nil
}

// LoadSQLiteReturns loads the episodic returns of the run with the
// given ID from the SQLite database at path, in episode order.
func LoadSQLiteReturns(path, runID string) ([]float64, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("loadSQLiteReturns: could not open "+
			"database: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT ret FROM episode_returns
		WHERE run_id = ?
		ORDER BY episode
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("loadSQLiteReturns: could not query "+
			"returns: %v", err)
	}
	defer rows.Close()

	var returns []float64
	for rows.Next() {
		var ret float64
		if err := rows.Scan(&ret); err != nil {
			return nil, fmt.Errorf("loadSQLiteReturns: could not scan "+
				"return: %v", err)
		}
		returns = append(returns, ret)
	}
	return returns, rows.Err()
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			tag TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS episode_returns (
			run_id TEXT NOT NULL REFERENCES runs(id),
			episode INTEGER NOT NULL,
			ret REAL NOT NULL,
			PRIMARY KEY (run_id, episode)
		);
	`)
	return err
}
