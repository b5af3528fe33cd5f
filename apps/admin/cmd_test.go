package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/admission"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

func setup(t *testing.T, withDB bool) (*commandLine, *bytes.Buffer) {
	t.Helper()
	out := new(bytes.Buffer)
	cli := &commandLine{
		drafts: inmemdb.NewDraftRepository(inmemdb.Open()),
		out:    out,
	}
	if withDB {
		cli.db = new(sql.DB)
	}
	return cli, out
}

func putDrafts(t *testing.T, store admission.DraftStore, drafts map[string]string) {
	t.Helper()
	for k, v := range drafts {
		require.NoError(t, store.Put(context.Background(), k, []byte(v)))
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func (tt cliTest) check(t *testing.T, cli *commandLine, out *bytes.Buffer) {
	t.Helper()
	out.Reset()
	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		assert.Truef(t, errors.Is(err, tt.wantErr), "cli.run() error = %v, wantErr %v", err, tt.wantErr)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		require.NoError(t, err)
	}
	if tt.wantOut != "" {
		assert.Equal(t, tt.wantOut, out.String())
	}
}

func Test_commandLine_run(t *testing.T) {
	cli, out := setup(t, false)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "drafts: no subcommand", args: []string{"drafts"}, wantErr: errHelp},
		{name: "drafts: unknown subcommand", args: []string{"drafts", "lol"}, wantErr: errHelp},
		{name: "migrate without postgres", args: []string{"migrate", "up"}, wantErr: errNoSQL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli, out)
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t, true)

	var ran []string
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "guardians", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli, out)
		})
	}
	assert.Equal(t, []string{"up", "up-to", "down", "status", "create"}, ran)
}

func Test_commandLine_drafts(t *testing.T) {
	cli, out := setup(t, false)
	isTerminalFunc = func(int) bool { return false }

	tests := []cliTest{
		{name: "list: empty", args: []string{"drafts", "list"}, wantOut: "no drafts\n"},
		{name: "show: no key", args: []string{"drafts", "show"}, wantErr: errHelp},
		{name: "show: unknown flag", args: []string{"drafts", "show", "-lol"}, wantErr: errHelp},
		{name: "show: not found", args: []string{"drafts", "show", "-key", "student"}, wantErr: admission.ErrDraftNotFound},
		{name: "clear: no key", args: []string{"drafts", "clear"}, wantErr: errHelp},
		{name: "clear: key and all", args: []string{"drafts", "clear", "-key", "student", "-all"}, wantErr: errHelp},
		{name: "clear: not found", args: []string{"drafts", "clear", "-key", "student"}, wantErr: admission.ErrDraftNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli, out)
		})
	}

	putDrafts(t, cli.drafts, map[string]string{
		"teacher:2": `{"name":"Jean"}`,
		"student:1": `{"name":"Amina"}`,
		"student:3": `{"name":"Koffi"}`,
	})

	tests = []cliTest{
		{name: "list", args: []string{"drafts", "list"}, wantOut: "student:1\nstudent:3\nteacher:2\n"},
		{name: "show", args: []string{"drafts", "show", "-key", "student:1"}, wantOut: "{\"name\":\"Amina\"}\n"},
		{name: "clear one", args: []string{"drafts", "clear", "-key", "teacher:2"}, wantOut: "1 draft(s) cleared\n"},
		{name: "list after clear", args: []string{"drafts", "list"}, wantOut: "student:1\nstudent:3\n"},
		{name: "clear all", args: []string{"drafts", "clear", "-all"}, wantOut: "2 draft(s) cleared\n"},
		{name: "list after clear all", args: []string{"drafts", "list"}, wantOut: "no drafts\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli, out)
		})
	}
}

func Test_commandLine_showDraft_terminal(t *testing.T) {
	cli, out := setup(t, false)
	isTerminalFunc = func(int) bool { return true }
	defer func() { isTerminalFunc = func(int) bool { return false } }()

	putDrafts(t, cli.drafts, map[string]string{"student": `{"name":"Amina","age":9}`})

	tt := cliTest{
		args:    []string{"drafts", "show", "-key", "student"},
		wantOut: "{\n  \"name\": \"Amina\",\n  \"age\": 9\n}\n",
	}
	tt.check(t, cli, out)
}
