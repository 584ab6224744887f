package sheets

import (
	"testing"
	"time"

	"github.com/onnwee/chat-tender/chatlog"
	"github.com/onnwee/chat-tender/config"
)

func TestNewExporterDisabledWithoutSpreadsheet(t *testing.T) {
	cfg := &config.Config{}
	if e := NewExporter(cfg, nil, nil); e != nil {
		t.Error("exporter should be nil when no spreadsheet id is configured")
	}
}

func TestBuildRows(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := BuildRows([]chatlog.ChatterCount{
		{Username: "alice", Messages: 42},
		{Username: "bob", Messages: 7},
	}, at)

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0][2] != "exported_at 2025-03-10T12:00:00Z" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "alice" || rows[1][1] != 42 {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][0] != "bob" || rows[2][1] != 7 {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestBuildRowsEmpty(t *testing.T) {
	rows := BuildRows(nil, time.Unix(0, 0).UTC())
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want header only", len(rows))
	}
}
