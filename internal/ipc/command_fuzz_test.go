package ipc

import (
	"os"
	"testing"
)

// FuzzCommandReceive ensures Receive never panics on arbitrary slot contents
// and only surfaces commands with known actions.
func FuzzCommandReceive(f *testing.F) {
	f.Add([]byte(`{"id":"a","action":"stop-monitoring","issued_at":"2026-01-02T03:04:05Z"}`))
	f.Add([]byte(`{"action":"pause"}`))
	f.Add([]byte("not json"))
	f.Add([]byte("{"))
	f.Add([]byte(""))

	f.Fuzz(func(t *testing.T, data []byte) {
		dir := t.TempDir()
		ch := NewCommandChannel(dir)
		_ = os.WriteFile(ch.Path(), data, 0o644)
		cmd, ok := ch.Receive() // must not panic
		if ok && !ValidAction(cmd.Action) {
			t.Fatalf("surfaced command with invalid action %q", cmd.Action)
		}
	})
}
