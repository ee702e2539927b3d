package plugin

import (
	"testing"
	"time"

	"kiama-backend/internal/models"
)

// loopingWasmUnit exports an alloc returning pointer 0 and a
// handle_message whose body branches back to its own loop head forever.
var loopingWasmUnit = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x01, 0x0c, 0x02, // type section, 2 entries
	0x60, 0x01, 0x7f, 0x01, 0x7f, // (i32) -> i32
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7e, // (i32, i32) -> i64
	0x03, 0x03, 0x02, 0x00, 0x01, // function section
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section, 1 page
	0x07, 0x23, 0x03, // export section, 3 entries
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x05, 'a', 'l', 'l', 'o', 'c', 0x00, 0x00,
	0x0e, 'h', 'a', 'n', 'd', 'l', 'e', '_', 'm', 'e', 's', 's', 'a', 'g', 'e', 0x00, 0x01,
	0x0a, 0x10, 0x02, // code section, 2 bodies
	0x04, 0x00, 0x41, 0x00, 0x0b, // alloc: i32.const 0, end
	0x09, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x42, 0x00, 0x0b, // handle_message: loop br 0 end, i64.const 0, end
}

func TestOverrunningGuestCallIsTornDown(t *testing.T) {
	saved := guestCallTimeout
	guestCallTimeout = 200 * time.Millisecond
	defer func() { guestCallTimeout = saved }()

	manager := newTestManager(t, nil)
	dir := t.TempDir()

	writeUnit(t, dir, Manifest{
		Name:        "spinner",
		Version:     "1.0.0",
		Unit:        "spinner.wasm",
		Checksum:    checksumOf(loopingWasmUnit),
		Permissions: []Permission{PermMessageHandler},
	}, loopingWasmUnit)

	if err := manager.LoadDir(dir); err != nil {
		t.Fatal(err)
	}

	handlers := manager.Handlers()
	if len(handlers) != 1 {
		t.Fatalf("expected 1 handler, got %d", len(handlers))
	}

	start := time.Now()
	got := handlers[0].Fn(models.Message{ID: 7, ChannelID: 1, Author: "alice", Content: "hi"})
	elapsed := time.Since(start)

	if elapsed > 5*time.Second {
		t.Fatalf("guest call held for %v, the runtime never closed", elapsed)
	}
	if got.ID != 7 || got.Content != "hi" {
		t.Errorf("timed-out handler must leave the message unchanged, got %+v", got)
	}

	// the plugin mutex is free again, a second call returns immediately
	start = time.Now()
	_ = handlers[0].Fn(models.Message{ID: 8, ChannelID: 1, Author: "alice", Content: "again"})
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("second call blocked for %v on a dead unit", waited)
	}
}
