// Package sensor acquires zone readings. Each configured channel is read into one slot of
// a snapshot; a failed read leaves that slot unknown.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/zone-heater/internal/model"
)

const DefaultDevicesDir = "/sys/bus/w1/devices"

// KindDS18 is the 1-Wire DS18B20 family.
const KindDS18 = "DS18"

var ErrMalformed = errors.New("malformed sensor data")

// Channel binds a snapshot slot to a 1-Wire device id such as 28-0316a2795fff.
type Channel struct {
	Index  int    `json:"index"`
	Device string `json:"device"`
}

// Source delivers the most recent snapshot.
type Source interface {
	Latest() model.Snapshot
}

// ReadTemp parses a w1_slave file and returns degrees Celsius.
func ReadTemp(devicePath string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(devicePath, "w1_slave"))
	if err != nil {
		return model.Unknown, fmt.Errorf("read sensor: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return model.Unknown, fmt.Errorf("%w: expected two lines", ErrMalformed)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return model.Unknown, fmt.Errorf("%w: crc check failed", ErrMalformed)
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return model.Unknown, fmt.Errorf("%w: no temperature field", ErrMalformed)
	}

	milliC, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return model.Unknown, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return float64(milliC) / 1000.0, nil
}

// W1Source polls DS18B20 sensors through the kernel 1-Wire sysfs tree.
type W1Source struct {
	dir      string
	channels []Channel
	size     int

	mu     sync.RWMutex
	latest model.Snapshot
}

func NewW1Source(dir string, channels []Channel) *W1Source {
	if dir == "" {
		dir = DefaultDevicesDir
	}
	size := 0
	for _, c := range channels {
		if c.Index+1 > size {
			size = c.Index + 1
		}
	}
	return &W1Source{
		dir:      dir,
		channels: channels,
		size:     size,
		latest:   unknownSnapshot(size),
	}
}

func unknownSnapshot(n int) model.Snapshot {
	s := make(model.Snapshot, n)
	for i := range s {
		s[i] = model.Unknown
	}
	return s
}

// Read takes one reading of every channel.
func (w *W1Source) Read() model.Snapshot {
	snap := unknownSnapshot(w.size)
	for _, c := range w.channels {
		v, err := ReadTemp(filepath.Join(w.dir, c.Device))
		if err != nil {
			log.Warn().Err(err).Int("channel", c.Index).Str("device", c.Device).Msg("Sensor read failed")
			continue
		}
		snap[c.Index] = v
	}

	w.mu.Lock()
	w.latest = snap
	w.mu.Unlock()
	return snap
}

// Latest returns a copy of the last snapshot read.
func (w *W1Source) Latest() model.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return append(model.Snapshot(nil), w.latest...)
}

// Poll reads every interval until ctx is cancelled.
func (w *W1Source) Poll(ctx context.Context, interval time.Duration) {
	log.Info().Int("channels", len(w.channels)).Dur("interval", interval).Msg("Starting sensor poller")

	w.Read()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Read()
		}
	}
}

// Enumerate lists the DS18B20 devices on the bus.
func (w *W1Source) Enumerate() []model.SensorInfo {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("Could not list 1-Wire devices")
		return nil
	}

	var ids []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "28-") {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)

	infos := make([]model.SensorInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, model.SensorInfo{Kind: KindDS18, ID: id})
	}
	return infos
}

// FormatInfo renders an enumeration the way the supervisor expects it.
func FormatInfo(infos []model.SensorInfo) string {
	var b strings.Builder
	counts := map[string]int{}
	for _, info := range infos {
		i := counts[info.Kind]
		counts[info.Kind] = i + 1
		fmt.Fprintf(&b, "%s Sensor %d: %s; ", info.Kind, i, info.ID)
	}
	return b.String()
}
