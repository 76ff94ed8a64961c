package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "remarker/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		j, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || j != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, j, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func sampleDeliveries() []Delivery {
	at := time.Date(2024, 6, 1, 8, 0, 1, 0, time.UTC)
	return []Delivery{
		{At: at, Cycle: 7, Endpoint: "LI7810_A", Address: "10.0.0.1", Topic: "t", Message: "zero check", OK: true, TookMS: 12},
		{At: at, Cycle: 7, Endpoint: "LI7810_B", Address: "10.0.0.2", Topic: "t", Message: "zero check", Error: "connection refused", TookMS: 3},
	}
}

func TestFileJournalAppends(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	j, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "journal.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := j.AppendDeliveries(ctx, sampleDeliveries()); err != nil {
		t.Fatalf("AppendDeliveries: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := j.AppendDeliveries(ctx, sampleDeliveries()); err == nil {
		t.Fatal("append after close should fail")
	}

	f, err := os.Open(filepath.Join(dir, "journal.deliveries.jsonl"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	var got []Delivery
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var d Delivery
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		got = append(got, d)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if got[1].OK || got[1].Error != "connection refused" {
		t.Fatalf("failure record = %+v", got[1])
	}
}

func TestSQLiteJournalAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	j, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	if err := j.AppendDeliveries(ctx, sampleDeliveries()); err != nil {
		t.Fatalf("AppendDeliveries: %v", err)
	}
	if err := j.AppendDeliveries(ctx, sampleDeliveries()[1:]); err != nil {
		t.Fatalf("AppendDeliveries: %v", err)
	}

	st := j.(*sqliteStore)
	total, failed, err := st.CountDeliveries(ctx, "LI7810_B")
	if err != nil {
		t.Fatalf("CountDeliveries: %v", err)
	}
	if total != 2 || failed != 2 {
		t.Fatalf("LI7810_B total=%d failed=%d, want 2/2", total, failed)
	}
	total, failed, err = st.CountDeliveries(ctx, "LI7810_A")
	if err != nil {
		t.Fatalf("CountDeliveries: %v", err)
	}
	if total != 1 || failed != 0 {
		t.Fatalf("LI7810_A total=%d failed=%d, want 1/0", total, failed)
	}
}
