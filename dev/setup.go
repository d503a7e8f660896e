package main

import (
	"fmt"
	"os"
	"path/filepath"

	historydb "mmp-pipeline/internal/history/db"
	"mmp-pipeline/lib/configutil"
	"mmp-pipeline/lib/configutil/sqlconfig"
)

func CreateHistoryDB() error {
	path := filepath.Join(stateDir, "history.db")
	fmt.Println("creating history database at", path)
	db, err := sqlconfig.Struct{File: path}.OpenDB(historydb.Schema)
	if err != nil {
		return err
	}
	return db.Close()
}

// the dev config keeps state under dev/.state, saves every download so later
// runs can go offline with use_saved, and never publishes for real
const localConfig = `{
  retriever: {
    saved: { kind: "dir", path: "dev/.state/saved" },
    save: true,
  },
  database: { file: "dev/.state/history.db" },
  catalog: { dry_run: true },
}
`

func WriteLocalConfig() error {
	path := configutil.LocalName("config.json5")
	_, err := os.Stat(path)
	if err == nil {
		fmt.Println("local config already exists at", path)
		return nil
	}
	fmt.Println("writing local config to", path)
	return os.WriteFile(path, []byte(localConfig), 0600)
}
