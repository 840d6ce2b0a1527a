package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/thatsimonsguy/zone-heater/db"
	"github.com/thatsimonsguy/zone-heater/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, window, olderThan string
	var limit, controlPin int
	var svc startup.Service
	var bootScript, bootUnit, mainUnit string

	flag.StringVar(&dbPath, "db", "data/zone-heater.db", "Path to the SQLite history database")
	flag.StringVar(&command, "cmd", "", "Command to run: summaries, heater-events, commands, prune, install-service")
	flag.StringVar(&window, "window", "24h", "Window for summaries")
	flag.StringVar(&olderThan, "older-than", "720h", "Age cutoff for prune")
	flag.IntVar(&limit, "limit", 20, "Rows to show for heater-events and commands")
	flag.IntVar(&controlPin, "control-pin", -1, "Heater control GPIO parked low at boot (install-service)")
	flag.StringVar(&svc.User, "user", "pi", "Service user (install-service)")
	flag.StringVar(&svc.WorkDir, "workdir", "/opt/zone-heater", "Service working directory (install-service)")
	flag.StringVar(&svc.ExecStart, "exec", "/opt/zone-heater/bin/zone-heater", "Controller binary (install-service)")
	flag.StringVar(&svc.ConfigFile, "config-file", "/etc/zone-heater/config.json", "Controller config file (install-service)")
	flag.StringVar(&bootScript, "boot-script", "/opt/zone-heater/boot-gpio.sh", "Boot script path (install-service)")
	flag.StringVar(&bootUnit, "boot-unit", "/etc/systemd/system/zone-heater-gpio.service", "Boot unit path (install-service)")
	flag.StringVar(&mainUnit, "main-unit", "/etc/systemd/system/zone-heater.service", "Controller unit path (install-service)")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of zone-heater-debug:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	var err error
	switch command {
	case "summaries":
		err = summaries(dbPath, window)
	case "heater-events":
		err = heaterEvents(dbPath, limit)
	case "commands":
		err = commands(dbPath, limit)
	case "prune":
		err = prune(dbPath, olderThan)
	case "install-service":
		if controlPin < 0 {
			fmt.Println("Error: -control-pin is required")
			os.Exit(1)
		}
		err = installService(controlPin, bootScript, bootUnit, mainUnit, svc)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func summaries(dbPath, window string) error {
	d, err := time.ParseDuration(window)
	if err != nil {
		return err
	}
	sums, err := db.ZoneSummariesCLI(dbPath, d)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Printf("No readings in the last %s\n", d)
		return nil
	}
	for _, s := range sums {
		fmt.Printf("%-16s %-20s n=%-6s min=%7.2f max=%7.2f avg=%7.2f\n",
			s.Zone, s.Field, humanize.Comma(int64(s.Samples)), s.Min, s.Max, s.Avg)
	}
	return nil
}

func heaterEvents(dbPath string, limit int) error {
	events, onFor, err := db.HeaterEventsCLI(dbPath, limit)
	if err != nil {
		return err
	}
	for _, e := range events {
		state := "OFF"
		if e.On {
			state = "ON"
		}
		mainTemp := "unknown"
		if e.MainTemperature != nil {
			mainTemp = fmt.Sprintf("%.1f", *e.MainTemperature)
		}
		fmt.Printf("%-3s %-10s main=%-8s %s (%s)\n", state, e.Source, mainTemp, e.At.Local().Format(time.DateTime), humanize.Time(e.At))
	}
	fmt.Printf("Heater on for %s in the last 24h\n", onFor.Round(time.Minute))
	return nil
}

func commands(dbPath string, limit int) error {
	cmds, err := db.CommandsCLI(dbPath, limit)
	if err != nil {
		return err
	}
	for _, c := range cmds {
		fmt.Printf("%-8s %-28s %-12s %s\n", c.Outcome, c.Topic, c.Value, humanize.Time(c.At))
	}
	return nil
}

func prune(dbPath, olderThan string) error {
	d, err := time.ParseDuration(olderThan)
	if err != nil {
		return err
	}
	n, err := db.PruneCLI(dbPath, d)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %s rows older than %s\n", humanize.Comma(n), d)
	return nil
}

func installService(controlPin int, bootScript, bootUnit, mainUnit string, svc startup.Service) error {
	if err := startup.WriteBootScript(bootScript, []startup.Pin{{Label: "heater.control", Number: controlPin}}); err != nil {
		return err
	}
	if err := startup.InstallBootService(bootUnit, bootScript); err != nil {
		return err
	}
	return startup.InstallControllerService(mainUnit, bootUnit, svc)
}
