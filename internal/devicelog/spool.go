package devicelog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"callsync_agent/platform/config"
)

// spoolDayLayout names one day file inside the spool directory.
const spoolDayLayout = "calls-2006-01-02.json"

// SpoolProvider reads call records from JSON day files the device shim
// drops into a spool directory. Each file holds the full call list for one
// local day; the shim rewrites the current day's file after every call.
type SpoolProvider struct {
	dir string
	now func() time.Time
}

// NewSpoolProvider returns a Provider backed by the configured spool
// directory. The directory is created if it does not exist yet so the shim
// always has somewhere to write.
func NewSpoolProvider(cfg config.DeviceConfig) (*SpoolProvider, error) {
	dir := cfg.GetDeviceSpoolDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir %s: %w", dir, err)
	}
	return &SpoolProvider{dir: dir, now: time.Now}, nil
}

// CallsToday returns all of today's call records.
func (p *SpoolProvider) CallsToday(ctx context.Context) ([]Entry, error) {
	return p.CallsForDay(ctx, 0)
}

// CallsForDay returns the records for the day dayOffset days ago. A missing
// day file means no calls that day, not an error.
func (p *SpoolProvider) CallsForDay(ctx context.Context, dayOffset int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	day := p.now().AddDate(0, 0, -dayOffset)
	path := filepath.Join(p.dir, day.Format(spoolDayLayout))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read spool file %s: %w", path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode spool file %s: %w", path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	return entries, nil
}
