// Package recording persists simulation results into a SQLite database
// so runs can be compared and post-processed with ordinary SQL tooling.
//
// Three tables are written per run: one row per scheduled instruction,
// one row per cache level, and a single summary row.
package recording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	// SQLite driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/sarchlab/o3sim/insts"
	"github.com/sarchlab/o3sim/timing/cache"
	"github.com/sarchlab/o3sim/timing/sched"
)

// TimelineRow is one scheduled instruction.
type TimelineRow struct {
	Seq             int
	Address         uint64
	Operation       string
	Function        string
	ExecutionTime   uint64
	Issue           uint64
	ExecuteComplete uint64
	WriteBack       uint64
	// CommitCycle avoids colliding with SQL's COMMIT keyword.
	CommitCycle uint64
}

// CacheStatsRow is the counters of one cache level.
type CacheStatsRow struct {
	Level      string
	Accesses   uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// SummaryRow is the whole-run summary.
type SummaryRow struct {
	TotalCycles          uint64
	InstructionsExecuted int
	IPC                  float64
	Mispredictions       int
}

type table struct {
	structType reflect.Type
	entries    []any
}

// Recorder buffers rows and writes them to SQLite in batched
// transactions. A Flush is registered with atexit so a run that ends
// through atexit.Exit still lands its buffered rows.
type Recorder struct {
	db     *sql.DB
	path   string
	tables map[string]*table

	batchSize  int
	entryCount int
}

// NewRecorder opens a fresh database at path. An empty path generates a
// unique name in the working directory. Creating over an existing file
// is refused rather than silently mixing runs.
func NewRecorder(path string) (*Recorder, error) {
	if path == "" {
		path = "o3sim_" + xid.New().String()
	}
	if !strings.HasSuffix(path, ".sqlite3") {
		path += ".sqlite3"
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("database file %s already exists", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	r := &Recorder{
		db:        db,
		path:      path,
		tables:    make(map[string]*table),
		batchSize: 100000,
	}

	if err := r.createTable("timelines", TimelineRow{}); err != nil {
		return nil, err
	}
	if err := r.createTable("cache_stats", CacheStatsRow{}); err != nil {
		return nil, err
	}
	if err := r.createTable("summary", SummaryRow{}); err != nil {
		return nil, err
	}

	atexit.Register(func() { _ = r.Flush() })

	return r, nil
}

// Path returns the database file path.
func (r *Recorder) Path() string {
	return r.path
}

// RecordSchedule inserts one timeline row per instruction.
func (r *Recorder) RecordSchedule(
	trace []*insts.Instruction,
	schedule *sched.Schedule,
) error {
	for i, inst := range trace {
		tl := schedule.Timelines[i]
		err := r.insert("timelines", TimelineRow{
			Seq:             i,
			Address:         inst.Address,
			Operation:       inst.Operation,
			Function:        inst.Function.String(),
			ExecutionTime:   inst.ExecutionTime,
			Issue:           tl.Issue,
			ExecuteComplete: tl.ExecuteComplete,
			WriteBack:       tl.WriteBack,
			CommitCycle:     tl.Commit,
		})
		if err != nil {
			return err
		}
	}

	return r.insert("summary", SummaryRow{
		TotalCycles:          schedule.TotalCycles,
		InstructionsExecuted: schedule.InstructionsExecuted,
		IPC:                  schedule.IPC,
		Mispredictions:       schedule.Mispredictions,
	})
}

// RecordCacheStats inserts the counters of one cache level under the
// given name, such as "icache" or "dcache_l1".
func (r *Recorder) RecordCacheStats(level string, stats cache.Statistics) error {
	return r.insert("cache_stats", CacheStatsRow{
		Level:      level,
		Accesses:   stats.Accesses,
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Evictions:  stats.Evictions,
		Writebacks: stats.Writebacks,
	})
}

// Flush writes every buffered row in one transaction.
func (r *Recorder) Flush() error {
	if r.entryCount == 0 {
		return nil
	}

	if _, err := r.db.Exec("BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for name, t := range r.tables {
		if err := r.flushTable(name, t); err != nil {
			// Leave no transaction open, so a later Flush can retry the
			// still-buffered rows.
			_, _ = r.db.Exec("ROLLBACK TRANSACTION")
			return err
		}
	}

	if _, err := r.db.Exec("COMMIT TRANSACTION"); err != nil {
		_, _ = r.db.Exec("ROLLBACK TRANSACTION")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, t := range r.tables {
		t.entries = t.entries[:0]
	}
	r.entryCount = 0

	return nil
}

// Close flushes and closes the database.
func (r *Recorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}
	return r.db.Close()
}

func (r *Recorder) createTable(name string, sample any) error {
	fields := structs.Names(sample)
	query := "CREATE TABLE " + name +
		" (\n\t" + strings.Join(fields, ",\n\t") + "\n);"

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}

	r.tables[name] = &table{
		structType: reflect.TypeOf(sample),
		entries:    []any{},
	}

	return nil
}

func (r *Recorder) insert(name string, entry any) error {
	t, exists := r.tables[name]
	if !exists {
		return fmt.Errorf("table %s does not exist", name)
	}
	if reflect.TypeOf(entry) != t.structType {
		return fmt.Errorf("table %s expects %s entries, got %T",
			name, t.structType.Name(), entry)
	}

	t.entries = append(t.entries, entry)

	r.entryCount++
	if r.entryCount >= r.batchSize {
		return r.Flush()
	}

	return nil
}

func (r *Recorder) flushTable(name string, t *table) error {
	if len(t.entries) == 0 {
		return nil
	}

	placeholders := make([]string, t.structType.NumField())
	for i := range placeholders {
		placeholders[i] = "?"
	}
	query := "INSERT INTO " + name +
		" VALUES (" + strings.Join(placeholders, ", ") + ")"

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert for %s: %w", name, err)
	}
	defer stmt.Close()

	for _, entry := range t.entries {
		v := reflect.ValueOf(entry)
		args := make([]any, v.NumField())
		for i := range args {
			args[i] = v.Field(i).Interface()
		}

		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", name, err)
		}
	}

	return nil
}
