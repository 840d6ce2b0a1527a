package db

import (
	"database/sql"
	"fmt"
	"time"
)

type Reading struct {
	At    time.Time
	Zone  string
	Field string
	Value float64
}

type HeaterEvent struct {
	At              time.Time
	On              bool
	Source          string
	MainTemperature *float64
}

type Command struct {
	At      time.Time
	Topic   string
	Value   string
	Outcome string
}

// ZoneSummary aggregates one zone field over a window.
type ZoneSummary struct {
	Zone    string
	Field   string
	Samples int
	Min     float64
	Max     float64
	Avg     float64
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// GetReadings returns a zone's readings for one field since the given time, oldest first.
func GetReadings(db *sql.DB, zone, field string, since time.Time) ([]Reading, error) {
	rows, err := db.Query(`SELECT recorded_at, zone, field, value FROM readings
		WHERE zone = ? AND field = ? AND recorded_at >= ? ORDER BY recorded_at, id`,
		zone, field, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var at string
		if err := rows.Scan(&at, &r.Zone, &r.Field, &r.Value); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.At = parseTime(at)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// GetZoneSummaries aggregates every zone field recorded since the given time.
func GetZoneSummaries(db *sql.DB, since time.Time) ([]ZoneSummary, error) {
	rows, err := db.Query(`SELECT zone, field, COUNT(*), MIN(value), MAX(value), AVG(value) FROM readings
		WHERE recorded_at >= ? GROUP BY zone, field ORDER BY zone, field`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var out []ZoneSummary
	for rows.Next() {
		var s ZoneSummary
		if err := rows.Scan(&s.Zone, &s.Field, &s.Samples, &s.Min, &s.Max, &s.Avg); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetHeaterEvents returns the most recent heater transitions, newest first.
func GetHeaterEvents(db *sql.DB, limit int) ([]HeaterEvent, error) {
	rows, err := db.Query(`SELECT recorded_at, heater_on, source, main_temperature FROM heater_events
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query heater events: %w", err)
	}
	defer rows.Close()

	var events []HeaterEvent
	for rows.Next() {
		var e HeaterEvent
		var at string
		var main sql.NullFloat64
		if err := rows.Scan(&at, &e.On, &e.Source, &main); err != nil {
			return nil, fmt.Errorf("failed to scan heater event: %w", err)
		}
		e.At = parseTime(at)
		if main.Valid {
			v := main.Float64
			e.MainTemperature = &v
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetCommands returns the most recent supervisor commands, newest first.
func GetCommands(db *sql.DB, limit int) ([]Command, error) {
	rows, err := db.Query(`SELECT recorded_at, topic, value, outcome FROM commands
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var cmds []Command
	for rows.Next() {
		var c Command
		var at string
		if err := rows.Scan(&at, &c.Topic, &c.Value, &c.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		c.At = parseTime(at)
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

// HeaterOnDuration sums the time the heater spent on between from and to, using the
// recorded transitions.
func HeaterOnDuration(db *sql.DB, from, to time.Time) (time.Duration, error) {
	var before sql.NullBool
	err := db.QueryRow(`SELECT heater_on FROM heater_events WHERE recorded_at < ?
		ORDER BY recorded_at DESC, id DESC LIMIT 1`, from.UTC().Format(time.RFC3339)).Scan(&before)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to query prior heater state: %w", err)
	}

	rows, err := db.Query(`SELECT recorded_at, heater_on FROM heater_events
		WHERE recorded_at >= ? AND recorded_at < ? ORDER BY recorded_at, id`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to query heater events: %w", err)
	}
	defer rows.Close()

	on := before.Valid && before.Bool
	since := from
	var total time.Duration
	for rows.Next() {
		var at string
		var next bool
		if err := rows.Scan(&at, &next); err != nil {
			return 0, fmt.Errorf("failed to scan heater event: %w", err)
		}
		t := parseTime(at)
		if on {
			total += t.Sub(since)
		}
		on = next
		since = t
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if on {
		total += to.Sub(since)
	}
	return total, nil
}
