package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/chatmirror/chatmirror/internal/boot"
	"github.com/chatmirror/chatmirror/internal/ingest"
	"github.com/chatmirror/chatmirror/internal/model"
	"github.com/chatmirror/chatmirror/internal/store"
)

const fallbackTextLimit = 2000

// Bulk importer for captured provider payload files. Each *.json file
// runs through the same pipeline as the live webhook; payloads that
// match no recognized shape still land as a bare "created" record so no
// captured traffic is lost.
func main() {
	config, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}

	dir := flag.String("dir", config.Importer.PayloadDir, "directory of *.json payload files")
	flag.Parse()

	messageStore, err := store.New(config.Database.DSN)
	if err != nil {
		log.Fatalf("opening message store: %+v", err)
	}
	defer messageStore.Close()

	pipeline := ingest.New(messageStore, ingest.NopNotifier{})

	files, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatalf("reading payload directory: %+v", err)
	}

	ctx := context.Background()
	imported := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		raw, err := os.ReadFile(path.Join(*dir, file.Name()))
		if err != nil {
			log.Errorf("reading %s: %v", file.Name(), err)
			continue
		}

		outcome, err := pipeline.Ingest(ctx, raw)
		if err != nil {
			if errors.As(err, new(*model.UnrecognizedPayloadError)) {
				if err := importFallback(ctx, messageStore, raw); err != nil {
					log.Errorf("importing %s as fallback: %v", file.Name(), err)
					continue
				}
				log.Warnf("%s: unrecognized shape, stored as bare record", file.Name())
				imported++
				continue
			}
			log.Errorf("importing %s: %v", file.Name(), err)
			continue
		}

		log.Infof("%s: inserted %d, updated %d", file.Name(), outcome.Inserted, outcome.Updated)
		imported += outcome.Inserted + outcome.Updated
	}

	log.Infof("done, %d records imported from %d files", imported, len(files))
}

// importFallback preserves an unclassifiable payload as a "created"
// record whose text is the truncated JSON.
func importFallback(ctx context.Context, messageStore *store.MessageStore, raw []byte) error {
	if !json.Valid(raw) {
		return errors.New("file is not valid JSON")
	}

	text := string(raw)
	if len(text) > fallbackTextLimit {
		text = text[:fallbackTextLimit]
	}

	return messageStore.Insert(ctx, &model.Message{
		WAID:       ingest.SenderID(raw),
		Text:       text,
		Status:     model.StatusCreated,
		RawPayload: json.RawMessage(raw),
	})
}
