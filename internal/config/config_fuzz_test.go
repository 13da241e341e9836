package config

import (
	"os"
	"strings"
	"testing"
)

// FuzzLoad feeds random-ish fields into a tiny TOML and ensures the loader
// does not panic and validation stays consistent.
func FuzzLoad(f *testing.F) {
	f.Add("blender", "45m", "5s", "1234", "key")
	f.Add("", "0s", "-1s", "", "")
	f.Add("a,b,c", "bogus", "5s", "label with spaces", "k")

	f.Fuzz(func(t *testing.T, proc, timeout, interval, target, key string) {
		clean := func(s string) string {
			s = strings.ReplaceAll(s, "\"", "")
			s = strings.ReplaceAll(s, "\n", "")
			return strings.ReplaceAll(s, "\\", "")
		}
		b := strings.Builder{}
		b.WriteString("processes = [\"")
		b.WriteString(clean(proc))
		b.WriteString("\"]\n")
		b.WriteString("idle_timeout = \"")
		b.WriteString(clean(timeout))
		b.WriteString("\"\n")
		b.WriteString("check_interval = \"")
		b.WriteString(clean(interval))
		b.WriteString("\"\n")
		b.WriteString("target = \"")
		b.WriteString(clean(target))
		b.WriteString("\"\n")
		b.WriteString("api_key = \"")
		b.WriteString(clean(key))
		b.WriteString("\"\n")

		tmp := t.TempDir() + "/fuzz.toml"
		if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
			t.Skip()
		}
		cfg, err := Load(tmp) // must not panic
		if err != nil {
			return
		}
		// Whatever loaded either validates or reports a reason.
		if verr := cfg.Validate(); verr == nil {
			if len(cfg.Processes) == 0 || cfg.IdleTimeout <= 0 {
				t.Fatalf("validated config violates invariants: %+v", cfg)
			}
		}
	})
}
