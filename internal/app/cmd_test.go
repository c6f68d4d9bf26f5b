package app

import (
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRootCommand_RegistersSubcommands(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	for _, name := range []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck, CommandCreateAdmin} {
		cmd, _, err := root.Find([]string{string(name)})
		if err != nil {
			t.Errorf("Find(%q) error = %v", name, err)
			continue
		}
		if cmd.Name() != string(name) {
			t.Errorf("Find(%q) = %q", name, cmd.Name())
		}
	}
}

func TestNewRootCommand_DefaultsToServe(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	if root.RunE == nil {
		t.Fatal("root command should run serve when no subcommand is given")
	}
}

func TestRun_UnexpectedArgs_ReturnsError(t *testing.T) {
	err := Run(&bytes.Buffer{}, []string{"serve", "extra"})
	if err == nil {
		t.Fatal("expected error for unexpected positional args")
	}
}

func TestHealthcheckCommand(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"正常", http.StatusOK, false},
		{"異常", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
			if err != nil {
				t.Fatalf("failed to parse server url: %v", err)
			}

			// 設定を読み込まないため必須環境変数がなくても動作する
			t.Setenv("JWT_SECRET", "")
			err = Run(&bytes.Buffer{}, []string{"healthcheck", "--port", port})
			if (err != nil) != tt.wantErr {
				t.Errorf("healthcheck error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateAdminCommand_MemoryStore(t *testing.T) {
	setMemoryEnv(t)

	var logs, out bytes.Buffer
	root := NewRootCommand(&logs)
	root.SetArgs([]string{"create-admin", "--username", "admin", "--email", "admin@example.com"})
	root.SetIn(strings.NewReader("adminpass\n"))
	root.SetOut(&out)

	if err := root.Execute(); err != nil {
		t.Fatalf("create-admin error = %v", err)
	}
	if !strings.Contains(out.String(), "created admin admin") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(logs.String(), "admin user created") {
		t.Errorf("expected creation log: %s", logs.String())
	}
}

func TestCreateAdminCommand_RequiresFlags(t *testing.T) {
	setMemoryEnv(t)

	root := NewRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"create-admin", "--username", "admin"})
	root.SetIn(strings.NewReader("adminpass\n"))

	if err := root.Execute(); err == nil {
		t.Fatal("expected error when --email is missing")
	}
}

func TestCreateAdminCommand_ShortPassword(t *testing.T) {
	setMemoryEnv(t)

	root := NewRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"create-admin", "--username", "admin", "--email", "admin@example.com"})
	root.SetIn(strings.NewReader("abc\n"))

	if err := root.Execute(); err == nil {
		t.Fatal("expected validation error for a short password")
	}
}

func TestReadPassword_FromReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"改行あり", "secret\n", "secret"},
		{"改行なし", "secret", "secret"},
		{"前後の空白", "  secret  \n", "secret"},
		{"2行目は無視", "first\nsecond\n", "first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPassword(strings.NewReader(tt.input), &bytes.Buffer{}, "Password: ")
			if err != nil {
				t.Fatalf("readPassword() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("readPassword() = %q, want %q", got, tt.want)
			}
		})
	}
}
