package app

import (
	"testing"
)

func TestParseCommand_DefaultsToServe(t *testing.T) {
	cmd := ParseCommand([]string{})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_KnownCommands(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{[]string{"serve"}, CommandServe},
		{[]string{"migrate"}, CommandMigrate},
		{[]string{"migrate", "down"}, CommandMigrate},
		{[]string{"promote", "admin@example.com"}, CommandPromote},
		{[]string{"healthcheck"}, CommandHealthcheck},
	}

	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestParseCommand_UnknownDefaultsToServe(t *testing.T) {
	cmd := ParseCommand([]string{"worker"})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([worker]) = %q, want %q", cmd, CommandServe)
	}
}

func TestCommandArgs(t *testing.T) {
	if got := commandArgs([]string{"promote"}); got != nil {
		t.Errorf("commandArgs([promote]) = %v, want nil", got)
	}
	if got := commandArgs(nil); got != nil {
		t.Errorf("commandArgs(nil) = %v, want nil", got)
	}
	got := commandArgs([]string{"migrate", "down", "--verbose"})
	if len(got) != 2 || got[0] != "down" || got[1] != "--verbose" {
		t.Errorf("commandArgs([migrate down --verbose]) = %v", got)
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CommandServe, "serve"},
		{CommandMigrate, "migrate"},
		{CommandPromote, "promote"},
		{CommandHealthcheck, "healthcheck"},
	}

	for _, tt := range tests {
		if got := string(tt.cmd); got != tt.want {
			t.Errorf("Command(%q) string = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}
