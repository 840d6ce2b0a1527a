package db

import (
	"time"
)

func PruneCLI(dbPath string, olderThan time.Duration) (int64, error) {
	dbConn, err := Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer dbConn.Close()

	return PruneBefore(dbConn, time.Now().Add(-olderThan))
}

func ZoneSummariesCLI(dbPath string, window time.Duration) ([]ZoneSummary, error) {
	dbConn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer dbConn.Close()

	return GetZoneSummaries(dbConn, time.Now().Add(-window))
}

func HeaterEventsCLI(dbPath string, limit int) ([]HeaterEvent, time.Duration, error) {
	dbConn, err := Open(dbPath)
	if err != nil {
		return nil, 0, err
	}
	defer dbConn.Close()

	events, err := GetHeaterEvents(dbConn, limit)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now()
	onFor, err := HeaterOnDuration(dbConn, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, 0, err
	}
	return events, onFor, nil
}

func CommandsCLI(dbPath string, limit int) ([]Command, error) {
	dbConn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer dbConn.Close()

	return GetCommands(dbConn, limit)
}
