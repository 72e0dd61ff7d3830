package main

import "testing"

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{
		{"ingest"}, {"transcribe"}, {"frames"}, {"index"},
		{"search"}, {"status"}, {"config", "init"}, {"config", "validate"},
	} {
		cmd, rest, err := root.Find(path)
		if err != nil || len(rest) != 0 {
			t.Fatalf("find %v: rest=%v err=%v", path, rest, err)
		}
		if cmd.Name() != path[len(path)-1] {
			t.Fatalf("find %v resolved %q", path, cmd.Name())
		}
	}

	initCmd, _, _ := root.Find([]string{"config", "init"})
	if !shouldSkipConfig(initCmd) {
		t.Fatal("config init should not load configuration")
	}
	searchCmd, _, _ := root.Find([]string{"search"})
	if shouldSkipConfig(searchCmd) {
		t.Fatal("search should load configuration")
	}
	if searchCmd.Flags().Lookup("top-k") == nil || searchCmd.Flags().Lookup("json") == nil {
		t.Fatal("search flags missing")
	}
}
