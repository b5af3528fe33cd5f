package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/shule/core/admission"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("migrations need the postgres drafts driver")
)

type commandLine struct {
	db     *sql.DB // nil unless drafts live in postgres
	drafts admission.DraftStore
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]          - run goose migrations (up, down, status, version, ...)")
	_, _ = fmt.Fprintln(cli.out, "  drafts list                     - list saved admission drafts")
	_, _ = fmt.Fprintln(cli.out, "  drafts show -key KEY            - print a draft")
	_, _ = fmt.Fprintln(cli.out, "  drafts clear -key KEY | -all    - delete drafts")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.db == nil {
			return errNoSQL
		}
		return cli.migrate(args[2:])
	case "drafts":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.runDrafts(args[2], args[3:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) runDrafts(cmd string, args []string) error {
	showCmd := flag.NewFlagSet("show", flag.ContinueOnError)
	showCmd.SetOutput(cli.out)
	showKey := showCmd.String("key", "", "The draft key, e.g. student or teacher:<session id>.")

	clearCmd := flag.NewFlagSet("clear", flag.ContinueOnError)
	clearCmd.SetOutput(cli.out)
	clearKey := clearCmd.String("key", "", "The draft key.")
	clearAll := clearCmd.Bool("all", false, "Delete every draft.")

	switch cmd {
	case "list":
		return cli.listDrafts()
	case "show":
		if err := showCmd.Parse(args); err != nil {
			return errHelp
		}
		if *showKey == "" {
			showCmd.Usage()
			return errHelp
		}
		return cli.showDraft(*showKey)
	case "clear":
		if err := clearCmd.Parse(args); err != nil {
			return errHelp
		}
		if (*clearKey == "") == !*clearAll {
			clearCmd.Usage()
			return errHelp
		}
		return cli.clearDrafts(*clearKey, *clearAll)
	default:
		cli.printUsage()
		return errHelp
	}
}

func stdoutIsTerminal() bool {
	return isTerminalFunc(int(os.Stdout.Fd()))
}
