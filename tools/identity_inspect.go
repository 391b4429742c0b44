// Command identity_inspect dumps the durable identity store: the persisted
// device id and today's match counter.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
)

const keyPrefix = "anon_chat_"

type dailyStats struct {
	Count      int    `cbor:"count"`
	Date       string `cbor:"date"`
	LastActive int64  `cbor:"last_active"`
}

func main() {
	dbPath := pflag.String("db", "./data/identity", "Path to the identity store")
	prefix := pflag.String("prefix", keyPrefix, "Prefix to scan")
	pflag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Value", "Detail"})
	table.SetAutoWrapText(false)
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
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				table.Append(describe(key, v))
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

// describe renders one entry. Counter records are CBOR, everything else is
// printed as text.
func describe(key string, v []byte) []string {
	if !strings.HasSuffix(key, "daily_stats") {
		return []string{key, string(v), ""}
	}
	var stats dailyStats
	if err := cbor.Unmarshal(v, &stats); err != nil {
		return []string{key, "<undecodable>", err.Error()}
	}
	detail := fmt.Sprintf("date=%s", stats.Date)
	if stats.LastActive > 0 {
		detail += " last_active=" + time.UnixMilli(stats.LastActive).Format(time.RFC3339)
	}
	return []string{key, fmt.Sprintf("%d matches", stats.Count), detail}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
