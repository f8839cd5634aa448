package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ytomioka/kizuna-calendar/internal/handlers"
	"github.com/ytomioka/kizuna-calendar/internal/models"
	"github.com/ytomioka/kizuna-calendar/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		log.Fatal("GOOGLE_CLOUD_PROJECT environment variable is required")
	}

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		log.Fatal("SESSION_SECRET environment variable is required")
	}

	ctx := context.Background()
	fsClient, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer fsClient.Close()

	todoService := services.NewTodoService(fsClient)
	authService := services.NewAuthService(fsClient, []byte(sessionSecret))

	storageService, err := services.NewStorageService(ctx, os.Getenv("GCS_BUCKET"))
	if err != nil {
		log.Fatalf("Failed to create storage service: %v", err)
	}
	defer storageService.Close()

	geminiService := services.NewGeminiService(ctx, os.Getenv("GEMINI_API_KEY"))
	notifier := services.NewNotifier(os.Getenv("LINE_CHANNEL_TOKEN"), os.Getenv("LINE_PARTNER_ID"))

	authService.OnChange(func(user *models.User) {
		if user != nil {
			log.Printf("Signed in: %s", user.Name)
		} else {
			log.Println("Signed out")
		}
	})

	// one-time account seeding, safe to leave set
	if email := os.Getenv("SEED_EMAIL"); email != "" {
		if err := authService.CreateUser(ctx, email, os.Getenv("SEED_PASSWORD"), os.Getenv("SEED_NAME")); err != nil {
			log.Printf("Failed to seed user: %v", err)
		}
	}

	appHandler := handlers.NewAppHandler(authService, todoService, storageService, geminiService, notifier)

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	appHandler.Register(e)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := e.Start(":" + port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
