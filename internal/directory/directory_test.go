package directory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/models"
	"kiama-backend/internal/snowflake"
)

func mustGenerate(t *testing.T) int64 {
	t.Helper()
	id, err := snowflake.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func appendText(t *testing.T, store *Store, channelID int64, author string, content string) models.Message {
	t.Helper()

	msg := models.Message{
		ID:              mustGenerate(t),
		ChannelID:       channelID,
		Author:          author,
		Content:         content,
		Type:            "text",
		ServerTimestamp: time.Now().UTC(),
	}
	if err := store.AppendMessage(msg, nil); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestDefaultEntitiesAreProtected(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name string
		del  func() error
	}{
		{"default channel", func() error { return store.DeleteChannel(store.DefaultChannelID()) }},
		{"default section", func() error { return store.DeleteSection(store.DefaultSectionID()) }},
		{"everyone role", func() error { return store.DeleteRole(store.EveryoneRoleID()) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.del()
			if err == nil {
				t.Fatalf("deleting the %s should fail", tc.name)
			}
			if apperrors.CodeOf(err) != apperrors.CodeProtectedEntity {
				t.Errorf("got code %s, want %s", apperrors.CodeOf(err), apperrors.CodeProtectedEntity)
			}
		})
	}
}

func TestSectionDeleteReassignsChannels(t *testing.T) {
	store := newTestStore(t)

	section, err := store.CreateSection("Games")
	if err != nil {
		t.Fatal(err)
	}
	channel, err := store.CreateChannel("chess", models.ChannelText, section.ID, models.ChannelSettings{})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteSection(section.ID); err != nil {
		t.Fatal(err)
	}

	got, err := store.Channel(channel.ID)
	if err != nil {
		t.Fatalf("channel should survive its section: %v", err)
	}
	if got.SectionID != 0 {
		t.Errorf("channel still assigned to section %d after delete", got.SectionID)
	}
}

func TestChannelDeletePurgesLogAndMetrics(t *testing.T) {
	store := newTestStore(t)

	channel, err := store.CreateChannel("temp", models.ChannelText, 0, models.ChannelSettings{})
	if err != nil {
		t.Fatal(err)
	}
	appendText(t, store, channel.ID, "alice", "hello")

	if err := store.DeleteChannel(channel.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := store.History(channel.ID, 10); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Error("message log should be purged with the channel")
	}
	if _, err := store.Metrics(channel.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Error("metrics should be purged with the channel")
	}
}

func TestRoleDeletePurgesAssignments(t *testing.T) {
	store := newTestStore(t)

	role, err := store.CreateRole("temp-role", "", models.RolePermissions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AssignRole("alice", role.ID); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteRole(role.ID); err != nil {
		t.Fatal(err)
	}

	roles := store.EffectiveRoles("alice")
	if len(roles) != 1 || roles[0].Name != EveryoneRoleName {
		t.Errorf("expected only everyone after role purge, got %d roles", len(roles))
	}
}

func TestHistoryWindow(t *testing.T) {
	store := newTestStore(t)
	general := store.DefaultChannelID()

	// empty channel yields an empty list, not an error
	history, err := store.History(general, HistoryWindow)
	if err != nil {
		t.Fatalf("History on empty channel errored: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d messages", len(history))
	}

	for i := 0; i < 60; i++ {
		appendText(t, store, general, "alice", "spam")
	}

	history, err = store.History(general, HistoryWindow)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != HistoryWindow {
		t.Errorf("expected %d messages, got %d", HistoryWindow, len(history))
	}
}

// A message appended while a session joins must reach it exactly once,
// either inside the snapshot window or through the attached subscription.
func TestHistorySnapshotAttachExcludesConcurrentAppend(t *testing.T) {
	store := newTestStore(t)
	general := store.DefaultChannelID()

	appendText(t, store, general, "alice", "before the join")

	var mutex sync.Mutex
	var delivered []int64
	attached := false

	racer := models.Message{
		ID:              mustGenerate(t),
		ChannelID:       general,
		Author:          "bob",
		Content:         "racing the join",
		Type:            "text",
		ServerTimestamp: time.Now().UTC(),
	}

	appendDone := make(chan error, 1)
	window, err := store.HistorySnapshot(general, HistoryWindow, func() {
		go func() {
			appendDone <- store.AppendMessage(racer, func(msg models.Message) {
				mutex.Lock()
				if attached {
					delivered = append(delivered, msg.ID)
				}
				mutex.Unlock()
			})
		}()
		// give the append a chance to reach the store lock
		time.Sleep(20 * time.Millisecond)

		mutex.Lock()
		attached = true
		mutex.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := <-appendDone; err != nil {
		t.Fatal(err)
	}

	seen := 0
	for _, msg := range window {
		if msg.ID == racer.ID {
			seen++
		}
	}
	mutex.Lock()
	for _, id := range delivered {
		if id == racer.ID {
			seen++
		}
	}
	mutex.Unlock()

	if seen != 1 {
		t.Fatalf("racing message reached the session %d times, want exactly once", seen)
	}
	if len(window) != 1 {
		t.Errorf("snapshot window has %d messages, want 1", len(window))
	}
}

func TestAppendOrderMatchesHistory(t *testing.T) {
	store := newTestStore(t)
	general := store.DefaultChannelID()

	m1 := appendText(t, store, general, "alice", "first")
	m2 := appendText(t, store, general, "bob", "second")

	history, err := store.History(general, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].ID != m1.ID || history[1].ID != m2.ID {
		t.Error("history order does not match append order")
	}
}

func TestMetricsCountExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	general := store.DefaultChannelID()

	appendText(t, store, general, "alice", "one")
	appendText(t, store, general, "alice", "two")
	appendText(t, store, general, "bob", "three")

	if err := store.RecordMedia(general); err != nil {
		t.Fatal(err)
	}

	metrics, err := store.Metrics(general)
	if err != nil {
		t.Fatal(err)
	}

	if metrics.MessageCount != 3 {
		t.Errorf("messageCount = %d, want 3", metrics.MessageCount)
	}
	if metrics.MediaCount != 1 {
		t.Errorf("mediaCount = %d, want 1", metrics.MediaCount)
	}
	if metrics.UniqueSenders != 2 {
		t.Errorf("uniqueSenders = %d, want 2", metrics.UniqueSenders)
	}
	if metrics.LastActiveAt.IsZero() {
		t.Error("lastActiveAt not updated")
	}
}

func TestModifyMessagePreservesIdentity(t *testing.T) {
	store := newTestStore(t)
	general := store.DefaultChannelID()

	original := appendText(t, store, general, "alice", "raw")

	content := "rendered"
	modified, err := store.ModifyMessage(original.ID, MessagePatch{Content: &content})
	if err != nil {
		t.Fatal(err)
	}

	if modified.ID != original.ID || modified.Author != original.Author || modified.ChannelID != original.ChannelID {
		t.Error("modify changed id, author or channel")
	}
	if modified.Content != "rendered" {
		t.Errorf("content = %q, want %q", modified.Content, "rendered")
	}

	history, err := store.History(general, 10)
	if err != nil {
		t.Fatal(err)
	}
	if history[0].Content != "rendered" {
		t.Error("modification not visible in the log")
	}
}

func TestModifyUnknownMessage(t *testing.T) {
	store := newTestStore(t)

	content := "x"
	_, err := store.ModifyMessage(123456, MessagePatch{Content: &content})
	if err == nil {
		t.Fatal("modifying unknown message should fail")
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeNotFound {
		t.Errorf("got %v, want NOT_FOUND", err)
	}
}

func TestAppendNotifyRunsInOrder(t *testing.T) {
	store := newTestStore(t)
	general := store.DefaultChannelID()

	var broadcastOrder []int64
	notify := func(msg models.Message) {
		broadcastOrder = append(broadcastOrder, msg.ID)
	}

	var appended []int64
	for i := 0; i < 5; i++ {
		msg := models.Message{
			ID:              mustGenerate(t),
			ChannelID:       general,
			Author:          "alice",
			Content:         "x",
			Type:            "text",
			ServerTimestamp: time.Now().UTC(),
		}
		if err := store.AppendMessage(msg, notify); err != nil {
			t.Fatal(err)
		}
		appended = append(appended, msg.ID)
	}

	for i := range appended {
		if broadcastOrder[i] != appended[i] {
			t.Fatalf("broadcast order diverged from append order at %d", i)
		}
	}
}
