package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/tidwall/gjson"

	"github.com/wuwenbin0122/lovelens/internal/store"
	"github.com/wuwenbin0122/lovelens/internal/utils"
)

func main() {
	id := flag.String("id", "", "print a single conversation as JSON")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.Store.Backend, err)
	}
	defer st.Close()

	if *id != "" {
		conv, err := st.GetConversation(ctx, *id)
		if err != nil {
			log.Fatalf("get %s: %v", *id, err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(conv); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	conversations, err := st.ListConversations(ctx)
	if err != nil {
		log.Fatalf("list conversations: %v", err)
	}

	fmt.Printf("%d conversations (%s store):\n", len(conversations), cfg.Store.Backend)
	for _, conv := range conversations {
		emotions := "-"
		if len(conv.Insights) > 0 {
			emotions = gjson.GetBytes(conv.Insights, "emotions.#.name").String()
		}
		fmt.Printf("- %s %q messages=%d created=%s emotions=%s\n",
			conv.ID, conv.Title, len(conv.Messages), conv.CreatedAt.Format("2006-01-02 15:04:05"), emotions)
		if conv.Summary != "" {
			fmt.Printf("    %s\n", conv.Summary)
		}
	}
}
