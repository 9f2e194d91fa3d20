package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/wuwenbin0122/lovelens/internal/models"
	"github.com/wuwenbin0122/lovelens/internal/store"
	"github.com/wuwenbin0122/lovelens/internal/utils"
)

type seedMessage struct {
	sender  models.Sender
	content string
}

type seedConversation struct {
	id       string
	title    string
	summary  string
	messages []seedMessage
	insights *models.Insights
}

func main() {
	replace := flag.Bool("replace", false, "delete seeded conversations before inserting them again")
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

	if cfg.Store.Backend == utils.StoreMemory {
		log.Printf("warning: seeding the memory store; data is dropped when this process exits")
	}

	for _, seed := range sampleConversations() {
		if *replace {
			if err := st.DeleteConversation(ctx, seed.id); err != nil {
				log.Fatalf("delete %s: %v", seed.id, err)
			}
		}

		if err := insert(ctx, st, seed); err != nil {
			if errors.Is(err, store.ErrConflict) {
				log.Printf("skip %s: already exists (use -replace to reseed)", seed.id)
				continue
			}
			log.Fatalf("seed %s: %v", seed.id, err)
		}
		log.Printf("seeded conversation %s (%d messages)", seed.id, len(seed.messages))
	}
}

func insert(ctx context.Context, st store.Store, seed seedConversation) error {
	if _, err := st.CreateConversation(ctx, store.CreateInput{
		ID:      seed.id,
		Title:   seed.title,
		Summary: seed.summary,
	}); err != nil {
		return err
	}

	for _, msg := range seed.messages {
		if _, err := st.AddMessage(ctx, seed.id, msg.content, msg.sender); err != nil {
			return err
		}
	}

	if seed.insights == nil {
		return nil
	}

	raw, err := json.Marshal(seed.insights)
	if err != nil {
		return err
	}
	_, err = st.UpdateConversation(ctx, seed.id, store.Update{Insights: raw})
	return err
}

func sampleConversations() []seedConversation {
	return []seedConversation{
		{
			id:      "sample-anxious-avoidant",
			title:   "Pulling Away After Dates",
			summary: "User feels anxious when a new partner becomes distant.",
			messages: []seedMessage{
				{models.SenderUser, "I've been on four dates with someone and every time we get closer they go quiet for days."},
				{models.SenderAI, "That push and pull can be really unsettling. What goes through your mind when they go quiet?"},
				{models.SenderUser, "I start replaying everything I said and wondering if I did something wrong."},
				{models.SenderAI, "It sounds like their distance quickly turns into self-doubt for you. Have you noticed this pattern before?"},
			},
			insights: &models.Insights{
				Emotions: []models.Emotion{
					{Name: "Anxiety", Value: 70, Color: "yellow-500"},
					{Name: "Uncertainty", Value: 60, Color: "indigo-500"},
					{Name: "Hopefulness", Value: 40, Color: "green-500"},
				},
				KeyInsights: []models.KeyInsight{
					{Title: "Anxious-Avoidant Dynamic", Content: "You appear to show anxious attachment tendencies in response to your date's avoidant behaviors."},
					{Title: "Communication Style", Content: "You tend to avoid direct conversations about relationship concerns, possibly fearing rejection."},
					{Title: "Emotional Pattern", Content: "Your anxiety increases when your partner withdraws, creating a cycle of uncertainty."},
				},
				ReflectionQuestions: []string{
					"What happens in your body when you notice this person pulling away?",
					"How does this current dynamic compare to patterns in your past relationships?",
					"What would feel like a \"secure\" relationship to you right now?",
				},
			},
		},
		{
			id: "sample-new",
		},
	}
}
