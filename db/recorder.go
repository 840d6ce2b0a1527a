package db

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

const recorderQueue = 64

// Recorder journals history on its own goroutine so a slow disk never holds up the
// control loop. Entries are dropped when the queue is full.
type Recorder struct {
	db    *sql.DB
	queue chan func(*sql.DB) error
	wg    sync.WaitGroup
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{
		db:    db,
		queue: make(chan func(*sql.DB) error, recorderQueue),
	}
}

// Start drains the queue on a new goroutine until ctx is cancelled, then flushes what
// is left.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

func (r *Recorder) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case job := <-r.queue:
			r.exec(job)
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case job := <-r.queue:
			r.exec(job)
		default:
			return
		}
	}
}

func (r *Recorder) exec(job func(*sql.DB) error) {
	if err := job(r.db); err != nil {
		log.Warn().Err(err).Msg("History write failed")
	}
}

func (r *Recorder) enqueue(kind string, job func(*sql.DB) error) {
	select {
	case r.queue <- job:
	default:
		log.Warn().Str("kind", kind).Msg("History queue full, dropping entry")
	}
}

// RecordReadings copies the zones and journals their known values.
func (r *Recorder) RecordReadings(at time.Time, zones []model.Zone) {
	zs := append([]model.Zone(nil), zones...)
	r.enqueue("readings", func(db *sql.DB) error {
		tx, err := StartTransaction(db)
		if err != nil {
			return err
		}
		if _, err := InsertReadingsWithTx(tx, at, zs); err != nil {
			RollbackTransaction(tx)
			return err
		}
		return CommitTransaction(tx)
	})
}

func (r *Recorder) RecordHeater(at time.Time, on bool, source string, mainTemp float64) {
	r.enqueue("heater", func(db *sql.DB) error {
		return InsertHeaterEvent(db, at, on, source, mainTemp)
	})
}

func (r *Recorder) RecordCommand(at time.Time, topic, value, outcome string) {
	r.enqueue("command", func(db *sql.DB) error {
		return InsertCommand(db, at, topic, value, outcome)
	})
}

// Wait blocks until the writer started by Start has flushed and exited.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
