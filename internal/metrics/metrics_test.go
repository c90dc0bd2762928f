package metrics

import (
	"encoding/json"
	"testing"
)

func TestCollector_Connections(t *testing.T) {
	c := New()

	c.Connected()
	c.Connected()
	c.Disconnected()
	c.Reset()

	if c.Connects() != 2 {
		t.Errorf("connects = %d, want 2", c.Connects())
	}
	if c.Disconnects() != 1 {
		t.Errorf("disconnects = %d, want 1", c.Disconnects())
	}
	if got := c.Snapshot().Resets; got != 1 {
		t.Errorf("resets = %d, want 1", got)
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(512)
	c.BytesReceived(100)

	if c.TotalBytesIn() != 1124 {
		t.Errorf("bytes in = %d, want 1124", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 512 {
		t.Errorf("bytes out = %d, want 512", c.TotalBytesOut())
	}
}

func TestCollector_Blocks(t *testing.T) {
	c := New()

	c.BlockLoaded(3)
	c.BlockLoaded(7)
	c.SystemReloaded()
	for i := 0; i < 5; i++ {
		c.PageReceived()
	}

	if c.BlocksLoaded() != 2 {
		t.Errorf("blocks = %d, want 2", c.BlocksLoaded())
	}
	if c.SystemReloads() != 1 {
		t.Errorf("reloads = %d, want 1", c.SystemReloads())
	}
	if c.PagesReceived() != 5 {
		t.Errorf("pages = %d, want 5", c.PagesReceived())
	}
	if got := c.Snapshot().LastBlock; got != 7 {
		t.Errorf("last block = %d, want 7", got)
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.ProtocolFault("short page")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
	snap := c.Snapshot()
	if snap.ProtocolFaults != 1 {
		t.Errorf("faults = %d, want 1", snap.ProtocolFaults)
	}
	if snap.LastErrorMessage != "short page" {
		t.Errorf("last error = %q", snap.LastErrorMessage)
	}
	if snap.LastError == "" {
		t.Error("expected a last error timestamp")
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.Connected()
	c.BytesSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.Connects != 1 {
		t.Errorf("JSON connects = %d", snap.Connects)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
	if snap.LastBlock != -1 {
		t.Errorf("JSON last block = %d, want -1", snap.LastBlock)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.Connected()
	c.Disconnected()
	c.Reset()
	c.BytesReceived(100)
	c.BytesSent(100)
	c.BlockLoaded(1)
	c.SystemReloaded()
	c.PageReceived()
	c.RecordError("test")
	c.ProtocolFault("test")

	if c.Connects() != 0 || c.TotalBytesIn() != 0 || c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.Snapshot().BlocksLoaded != 0 {
		t.Error("nil snapshot should be zero")
	}
	if c.JSON() == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
