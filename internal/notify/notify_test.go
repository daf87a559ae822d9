package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	evt := Event{Type: EventTierTransition, OwnerID: "owner-1", Ref: "item-abc", From: "hot", To: "warm"}
	if err := w.Notify(evt); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event file, got %d", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".event" {
		t.Errorf("expected .event extension, got %s", entries[0].Name())
	}
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()

	received := make(chan Event, 1)
	watcher := NewEventWatcher(dir, func(evt Event) {
		received <- evt
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	writer := NewEventWriter(dir)
	evt := Event{Type: EventChunkArchived, OwnerID: "owner-1", Ref: "chunk-xyz"}
	if err := writer.Notify(evt); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != EventChunkArchived {
			t.Errorf("expected type %s, got %s", EventChunkArchived, got.Type)
		}
		if got.Ref != "chunk-xyz" {
			t.Errorf("expected ref chunk-xyz, got %s", got.Ref)
		}
		if got.OwnerID != "owner-1" {
			t.Errorf("expected owner-1, got %s", got.OwnerID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()

	// Write events BEFORE starting watcher
	writer := NewEventWriter(dir)
	_ = writer.Notify(Event{Type: EventTierTransition, OwnerID: "o", Ref: "drain1", Time: 1})
	_ = writer.Notify(Event{Type: EventChunkRedacted, OwnerID: "o", Ref: "drain2", Time: 2})

	received := make(chan string, 10)
	watcher := NewEventWatcher(dir, func(evt Event) {
		received <- evt.Ref
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ref := <-received:
			seen[ref] = true
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for drained events")
		}
	}
	if !seen["drain1"] || !seen["drain2"] {
		t.Errorf("missing drained events: %v", seen)
	}
}

func TestEventFilesRemovedAfterProcessing(t *testing.T) {
	dir := t.TempDir()

	writer := NewEventWriter(dir)
	_ = writer.Notify(Event{Type: EventItemPurged, OwnerID: "o", Ref: "gone"})

	done := make(chan struct{}, 1)
	watcher := NewEventWatcher(dir, func(evt Event) {
		done <- struct{}{}
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected event files to be consumed, found %d", len(entries))
	}
}

func TestSanitizeID(t *testing.T) {
	got := sanitizeID("item:abc/def")
	if got != "item_abc_def" {
		t.Errorf("expected item_abc_def, got %s", got)
	}
}
