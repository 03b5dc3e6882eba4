package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/noah-isme/taskmanager/internal/app"
	"github.com/noah-isme/taskmanager/internal/shared"
	"github.com/noah-isme/taskmanager/internal/tasks"
	"github.com/noah-isme/taskmanager/internal/users"
)

type demoAccount struct {
	name     string
	email    string
	password string
	age      int
	tasks    []demoTask
}

type demoTask struct {
	description string
	completed   bool
}

var accounts = []demoAccount{
	{
		name: "Demo Admin", email: "admin@example.com", password: "admin-demo-1", age: 35,
		tasks: []demoTask{
			{description: "Review open pull requests", completed: true},
			{description: "Rotate JWT_SECRET on staging"},
			{description: "Check orphan sweep dashboard"},
		},
	},
	{
		name: "Demo User", email: "user@example.com", password: "user-demo-1", age: 28,
		tasks: []demoTask{
			{description: "Buy groceries"},
			{description: "Book dentist appointment", completed: true},
		},
	},
}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open stores: %v", err)
	}
	defer stores.Close()

	taskService := tasks.NewService(stores.Tasks)
	userService := users.NewService(stores.Users, taskService, stores.Tx, users.ServiceConfig{
		BcryptCost: cfg.BcryptCost,
		Logger:     logger,
	})

	fmt.Printf("→ Seeding %s store...\n", cfg.StoreDriver)
	for _, account := range accounts {
		if err := seedAccount(ctx, userService, taskService, stores.Users, account); err != nil {
			log.Fatalf("seed %s: %v", account.email, err)
		}
	}
	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// seedAccount registers the account unless its email is already taken, in
// which case the existing user is left untouched.
func seedAccount(ctx context.Context, userService *users.Service, taskService *tasks.Service, repo users.Repository, account demoAccount) error {
	if existing, err := repo.GetByEmail(ctx, account.email); err == nil {
		fmt.Printf("  skip %s (exists as %s)\n", account.email, existing.ID)
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	age := account.age
	user, err := userService.Register(ctx, users.RegisterInput{
		Name:     account.name,
		Age:      &age,
		Email:    account.email,
		Password: account.password,
	})
	if err != nil {
		return err
	}
	for _, t := range account.tasks {
		completed := t.completed
		if _, err := taskService.Create(ctx, user.ID, tasks.CreateInput{Description: t.description, Completed: &completed}); err != nil {
			return err
		}
	}
	fmt.Printf("  + %s with %d tasks\n", account.email, len(account.tasks))
	return nil
}
