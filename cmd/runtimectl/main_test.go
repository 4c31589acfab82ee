package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"chats", "health", "metrics"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestChatsCmdIncludesSubcommands(t *testing.T) {
	baseURL := "http://localhost:8080"
	cmd := buildChatsCmd(&baseURL)
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"start", "list", "exists", "meta"} {
		if !names[name] {
			t.Fatalf("expected chats subcommand %q to be registered", name)
		}
	}
}
