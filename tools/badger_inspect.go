package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"transfer-lab/domain"
	"transfer-lab/internal"
	"transfer-lab/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// Standalone dump of a data-center store, for poking at a stopped daemon.
// The live daemon serves the same view over HTTP through the inspector.
func main() {
	dbPath := flag.String("db", "", "path to a data-center store, e.g. ./data/dc-1/store")
	// "doc:" by default to skip the bulky blob families
	prefix := flag.String("prefix", "doc:", "prefix to scan")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("missing -db path")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening the store: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Namespace", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				row := mapRow(string(item.Key()), v)
				table.Append([]string{row.Key, row.Type, row.Timestamp, row.EntityID, row.Namespace, row.Detail})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func mapRow(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "doc:"):
		var doc domain.Document
		if err := json.Unmarshal(val, &doc); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = strings.ToUpper(string(doc.Kind))
		row.Namespace = doc.Channel
		row.Timestamp = doc.Date.Format("15:04:05")
		row.Detail = fmt.Sprintf("%s (%s, %s)", doc.Name, humanize.Bytes(uint64(doc.Size)), doc.Mimetype)
	case strings.HasPrefix(key, "stagemeta:"):
		var meta repositories.StagedUpload
		if err := json.Unmarshal(val, &meta); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "STAGING"
		row.Timestamp = meta.UpdatedAt.Format("15:04:05")
		row.Detail = fmt.Sprintf("%d parts, %s", meta.Parts, humanize.Bytes(uint64(meta.Bytes)))
	case strings.HasPrefix(key, "session:"):
		var rec repositories.SessionRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "SESSION"
		row.Timestamp = rec.CreatedAt.Format("15:04:05")
		row.Detail = fmt.Sprintf("%s, home DC %d", rec.ID, rec.HomeDC)
	}
	return row
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// A store the daemon did not close cleanly needs a write open to truncate.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)
			return badger.Open(repairOpts)
		}
		return nil, err
	}
	return db, nil
}
