// cmd/seeder/main.go
package main

import (
	"fmt"

	"github.com/sendhawk/bulkmail-backend/internal/config"
	"github.com/sendhawk/bulkmail-backend/internal/db"
	"github.com/sendhawk/bulkmail-backend/internal/model"
	"github.com/sendhawk/bulkmail-backend/internal/repository"
)

// Seeds the schema plus a demo audience and campaign for local testing.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	conn, err := db.Open(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		panic(err)
	}
	fmt.Println("Schema applied")

	subscriberRepo := &repository.SubscriberRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}

	subscribers := []*model.Subscriber{
		{Email: "alice@example.com", FirstName: "Alice", LastName: "Smith", Attribs: map[string]string{"city": "Nairobi"}},
		{Email: "bob@example.com", FirstName: "Bob", LastName: "Jones", Attribs: map[string]string{"city": "Mombasa"}},
		{Email: "carol@example.com", FirstName: "Carol", LastName: "White", Attribs: map[string]string{"city": "Kisumu"}},
	}
	for _, s := range subscribers {
		if err := subscriberRepo.Create(s); err != nil {
			fmt.Printf("skip subscriber %s: %v\n", s.Email, err)
			continue
		}
		fmt.Printf("Seeded subscriber: %s\n", s.Email)
	}

	campaign := &model.Campaign{
		Name:          "Welcome series",
		FromEmail:     "hello@example.com",
		FromName:      "Example Team",
		Subject:       "Hi {first_name}, welcome aboard!",
		TemplateHTML:  "<p>Hi {first_name}, thanks for joining us from {city}.</p>",
		ABEnabled:     true,
		SplitRatio:    50,
		SubjectB:      "{first_name}, your account is ready",
		TemplateHTMLB: "<p>Hello {first_name} {last_name}, your account is ready to go.</p>",
	}
	if err := campaignRepo.Create(campaign); err != nil {
		panic(err)
	}
	fmt.Printf("Seeded campaign: %s (id %d)\n", campaign.Name, campaign.ID)

	fmt.Println("Database seeding completed successfully!")
}
