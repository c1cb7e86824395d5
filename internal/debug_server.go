package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer exposes a read-only view of the snapshot store over
// HTTP. Development tooling; never exposed beyond localhost.
func StartDebugServer(db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = SnapshotMapper
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "chan:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("localhost:%d", port), mux)
	}()
}

// SnapshotMapper decodes the two persisted key families:
// chan:{channelID} and inv:{inviteeID}:{createdAtNano}:{invitationID}.
func SnapshotMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	parts := strings.Split(key, ":")
	switch parts[0] {
	case "chan":
		row.Type = "CHANNEL"
		if len(parts) >= 2 {
			row.EntityID = shorten(parts[1])
		}
		var snapshot struct {
			Name     string `json:"name"`
			Members  []any  `json:"members"`
			Messages []any  `json:"messages"`
		}
		if err := json.Unmarshal(val, &snapshot); err == nil {
			row.Detail = fmt.Sprintf("%s (%d members, %d messages)",
				snapshot.Name, len(snapshot.Members), len(snapshot.Messages))
		}
	case "inv":
		row.Type = "INVITATION"
		if len(parts) >= 4 {
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				row.Timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
			row.EntityID = shorten(parts[3])
		}
		var snapshot struct {
			ChannelName string `json:"channelName"`
			Status      string `json:"status"`
		}
		if err := json.Unmarshal(val, &snapshot); err == nil {
			row.Detail = fmt.Sprintf("%s [%s]", snapshot.ChannelName, snapshot.Status)
		}
	}
	return row
}

func shorten(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
