package main

import (
	"testing"

	"github.com/urfave/cli/v2"
)

func runArgs(t *testing.T, args ...string) error {
	t.Helper()
	app := cli.NewApp()
	app.Action = run
	return app.Run(append([]string{"server"}, args...))
}

func TestRun_WrongArgCount(t *testing.T) {
	if err := runArgs(t, "8080", "4"); err == nil {
		t.Fatal("expected error for missing arguments")
	}
}

func TestRun_BadPort(t *testing.T) {
	if err := runArgs(t, "not-a-port", "4", "8", "block"); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestRun_NonPositiveThreads(t *testing.T) {
	if err := runArgs(t, "8080", "0", "8", "block"); err == nil {
		t.Fatal("expected error for non-positive threads")
	}
}

func TestRun_NonPositiveQueueSize(t *testing.T) {
	if err := runArgs(t, "8080", "4", "-1", "block"); err == nil {
		t.Fatal("expected error for non-positive queue_size")
	}
}

func TestRun_UnknownSchedalg(t *testing.T) {
	if err := runArgs(t, "8080", "4", "8", "not-a-policy"); err == nil {
		t.Fatal("expected error for unknown schedalg")
	}
}
