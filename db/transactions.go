package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// InsertReadingsWithTx journals every known reading of every active zone.
func InsertReadingsWithTx(tx *sql.Tx, at time.Time, zones []model.Zone) (int, error) {
	stmt, err := tx.Prepare(`INSERT INTO readings (recorded_at, zone, field, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare reading insert: %w", err)
	}
	defer stmt.Close()

	ts := at.UTC().Format(time.RFC3339)
	n := 0
	for _, z := range zones {
		if !z.Active() {
			continue
		}
		fields := []struct {
			field model.Field
			value float64
		}{
			{model.FieldTemperature, z.Temperature},
			{model.FieldHumidity, z.Humidity},
			{model.FieldPressure, z.Pressure},
			{model.FieldVOC, z.VOC},
			{model.FieldTemperatureValve, z.TemperatureValve},
			{"target", z.TemperatureTarget},
		}
		for _, f := range fields {
			if !model.IsKnown(f.value) {
				continue
			}
			if _, err := stmt.Exec(ts, z.Name, string(f.field), f.value); err != nil {
				return n, fmt.Errorf("insert reading %s/%s: %w", z.Name, f.field, err)
			}
			n++
		}
	}
	return n, nil
}

func InsertHeaterEvent(db *sql.DB, at time.Time, on bool, source string, mainTemp float64) error {
	var main interface{}
	if model.IsKnown(mainTemp) {
		main = mainTemp
	}
	_, err := db.Exec(`INSERT INTO heater_events (recorded_at, heater_on, source, main_temperature) VALUES (?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339), on, source, main)
	if err != nil {
		return fmt.Errorf("insert heater event: %w", err)
	}
	return nil
}

func InsertCommand(db *sql.DB, at time.Time, topic, value, outcome string) error {
	_, err := db.Exec(`INSERT INTO commands (recorded_at, topic, value, outcome) VALUES (?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339), topic, value, outcome)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

// PruneBefore deletes journal rows older than cutoff and returns how many went.
func PruneBefore(db *sql.DB, cutoff time.Time) (int64, error) {
	tx, err := StartTransaction(db)
	if err != nil {
		return 0, err
	}
	ts := cutoff.UTC().Format(time.RFC3339)

	var total int64
	for _, table := range []string{"readings", "heater_events", "commands"} {
		res, err := tx.Exec(`DELETE FROM `+table+` WHERE recorded_at < ?`, ts)
		if err != nil {
			RollbackTransaction(tx)
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, CommitTransaction(tx)
}
