package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/admission"
)

const draftsTimeout = 10 * time.Second

func (cli *commandLine) listDrafts() error {
	ctx, cancel := context.WithTimeout(context.Background(), draftsTimeout)
	defer cancel()

	keys, err := cli.drafts.Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(cli.out, "no drafts")
		return nil
	}
	for _, k := range keys {
		_, _ = fmt.Fprintln(cli.out, k)
	}
	return nil
}

// showDraft prints a draft, indented when writing to a terminal.
func (cli *commandLine) showDraft(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), draftsTimeout)
	defer cancel()

	data, err := cli.drafts.Get(ctx, key)
	if err != nil {
		return err
	}
	if stdoutIsTerminal() {
		var buf bytes.Buffer
		if err = json.Indent(&buf, data, "", "  "); err == nil {
			data = buf.Bytes()
		}
	}
	_, _ = fmt.Fprintln(cli.out, string(data))
	return nil
}

func (cli *commandLine) clearDrafts(key string, all bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), draftsTimeout)
	defer cancel()

	keys := []string{key}
	if all {
		var err error
		if keys, err = cli.drafts.Keys(ctx); err != nil {
			return err
		}
	}
	for _, k := range keys {
		if err := cli.drafts.Delete(ctx, k); err != nil {
			if all && errors.Cause(err) == admission.ErrDraftNotFound {
				continue
			}
			return errors.Wrapf(err, "clearing %s", k)
		}
	}
	_, _ = fmt.Fprintf(cli.out, "%d draft(s) cleared\n", len(keys))
	return nil
}
