package auth

import (
	"strconv"
	"sync"
	"testing"
)

func TestGenerateUsername(t *testing.T) {
	tests := []struct {
		name     string
		wantBase string
	}{
		{"Ada Lovelace", "adalovelace"},
		{"  ", "user"},
		{"Grace Brewster Murray Hopper", "gracebrewste"},
		{"Ünïcødé 42", "ncd42"},
	}
	for _, tt := range tests {
		got := GenerateUsername(tt.name)
		if len(got) != len(tt.wantBase)+4 || got[:len(tt.wantBase)] != tt.wantBase {
			t.Errorf("GenerateUsername(%q) = %q, want %s + 4 digits", tt.name, got, tt.wantBase)
		}
	}
}

func TestGenerateUsernameConcurrent(t *testing.T) {
	const workers, perWorker = 8, 100

	var wg sync.WaitGroup
	errs := make(chan string, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				got := GenerateUsername("alice")
				if len(got) != len("alice")+4 || got[:5] != "alice" {
					errs <- got
					continue
				}
				if _, err := strconv.Atoi(got[5:]); err != nil {
					errs <- got
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("GenerateUsername(%q) = %q, want alice + 4 digits", "alice", got)
	}
}
