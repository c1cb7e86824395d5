package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"chat-mesh/domain"
)

// Read-only inspector of a client snapshot database. Opens the store of
// a running client without taking its lock.
func main() {
	_ = godotenv.Load()
	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB")
	prefix := flag.String("prefix", "chan:", "Prefix to scan (chan: or inv:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	header := color.New(color.BgBlack, color.FgGreen).Render(" Snapshot store: " + *dbPath + " ")
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Entity ID", "Detail"})
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
				table.Append(describe(string(item.Key()), v))
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

func describe(key string, val []byte) []string {
	parts := strings.Split(key, ":")
	switch parts[0] {
	case "chan":
		var ch domain.Channel
		if err := json.Unmarshal(val, &ch); err != nil {
			return []string{key, "CHANNEL", "?", "Error: unmarshal failed"}
		}
		detail := fmt.Sprintf("%s | %d members | %d messages",
			ch.Name, len(ch.Members), len(ch.Messages))
		return []string{key, "CHANNEL", shorten(ch.ID), detail}
	case "inv":
		var inv domain.Invitation
		if err := json.Unmarshal(val, &inv); err != nil {
			return []string{key, "INVITATION", "?", "Error: unmarshal failed"}
		}
		detail := fmt.Sprintf("%s [%s] from %s at %s",
			inv.ChannelName, inv.Status, inv.Inviter.Name,
			inv.CreatedAt.Format(time.TimeOnly))
		return []string{key, "INVITATION", shorten(inv.ID), detail}
	default:
		return []string{key, "RAW", "?", "Size: " + strconv.Itoa(len(val)) + " bytes"}
	}
}

func shorten(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)
	return badger.Open(opts)
}
