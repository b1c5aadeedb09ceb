package main

import (
	"bytes"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PRIMARY_ENGINE", "mock")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-mode", "development"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLeaderboardOnEmptyStore(t *testing.T) {
	out, err := runCLI(t, "leaderboard", "--json")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("out=%q", out)
	}
}

func TestVerifyUnknownUser(t *testing.T) {
	if _, err := runCLI(t, "verify", "ghost"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err=%v", err)
	}
}

func TestAdjustRequiresReason(t *testing.T) {
	if _, err := runCLI(t, "adjust", "u1", "10"); err == nil || !strings.Contains(err.Error(), "reason") {
		t.Fatalf("err=%v", err)
	}
}

func TestAdjustRejectsBadDelta(t *testing.T) {
	if _, err := runCLI(t, "adjust", "u1", "ten", "--reason", "typo"); err == nil || !strings.Contains(err.Error(), "integer") {
		t.Fatalf("err=%v", err)
	}
}

func TestWatchNeedsRedis(t *testing.T) {
	if _, err := runCLI(t, "watch"); err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("err=%v", err)
	}
}
