package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"

	"chat-relay/domain"
)

type inspectConfig struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"/tmp/chat-relay/badger"`
	// INSPECT_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	_ = godotenv.Load()
	var cfg inspectConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Config error: ", err)
	}

	dbPath := flag.String("db", cfg.BadgerFilepath, "Path to badger DB")
	// Default scans primary message records; pointer indexes are skipped anyway
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	header := fmt.Sprintf("  ====== chat-relay inspect %s ======", *prefix)
	if cfg.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "From", "To", "Flags", "Detail"})
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
			rawKey := string(item.Key())

			err := item.Value(func(v []byte) error {
				// Pointer indexes hold a primary key, not a document
				if strings.HasPrefix(string(v), "msg:") || strings.HasPrefix(string(v), "convo:") {
					return nil
				}
				table.Append(rowFor(rawKey, v))
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

func rowFor(rawKey string, value []byte) []string {
	switch {
	case strings.HasPrefix(rawKey, "msg:"):
		var m domain.Message
		if err := json.Unmarshal(value, &m); err != nil {
			return []string{rawKey, "?", "", "", "", "", fmt.Sprintf("unmarshal: %v", err)}
		}
		flags := ""
		if m.Delivered {
			flags += "D"
		}
		if m.Seen {
			flags += "S"
		}
		return []string{
			rawKey,
			"MSG",
			m.Timestamp.Format("15:04:05"),
			m.SenderID,
			m.ReceiverID,
			flags,
			domain.Preview(m.Content),
		}
	case strings.HasPrefix(rawKey, "convo:"):
		var c domain.Conversation
		if err := json.Unmarshal(value, &c); err != nil {
			return []string{rawKey, "?", "", "", "", "", fmt.Sprintf("unmarshal: %v", err)}
		}
		return []string{
			rawKey,
			"CONVO",
			c.LastMessageAt.Format("15:04:05"),
			c.Participants[0],
			c.Participants[1],
			fmt.Sprintf("unread:%v", c.UnreadCounters),
			c.LastMessagePreview,
		}
	case strings.HasPrefix(rawKey, "device:"):
		var d domain.Device
		if err := json.Unmarshal(value, &d); err != nil {
			return []string{rawKey, "?", "", "", "", "", fmt.Sprintf("unmarshal: %v", err)}
		}
		token := d.Token
		if len(token) > 8 {
			token = token[:8]
		}
		return []string{rawKey, "DEVICE", d.LastSeenAt.Format("15:04:05"), d.UserID, "", string(d.Platform), token}
	default:
		return []string{rawKey, "RAW", "", "", "", "", string(value)}
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}
