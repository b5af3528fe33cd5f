package main

import (
	"log"
	"os"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/storage/database"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
	"github.com/trezcool/shule/storage/localfs"
)

var logger = log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	cli := commandLine{out: os.Stdout}

	switch conf.Drafts.Driver {
	case "postgres":
		errAndDie(database.CreateIfNotExist(conf.Database))
		db, err := database.Open(conf.Database)
		errAndDie(err)
		defer func() { _ = db.Close() }()
		cli.db = db.DB
		cli.drafts = sqlxrepos.NewDraftRepository(db)
	case "file":
		store, err := localfs.NewDraftStore(conf.Drafts.Dir)
		errAndDie(err)
		cli.drafts = store
	default:
		// in-memory drafts die with the API process; nothing to manage
		cli.drafts = inmemdb.NewDraftRepository(inmemdb.Open())
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
