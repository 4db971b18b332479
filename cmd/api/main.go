package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"seekca/internal/adapter/api"
	"seekca/internal/adapter/api/handler"
	apimiddleware "seekca/internal/adapter/api/middleware"
	"seekca/internal/adapter/api/router"
	"seekca/internal/adapter/repository"
	"seekca/internal/infrastructure/websocket"
	"seekca/internal/usecase"
	"seekca/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opt option.ClientOption

	// Service account JSON is injected directly in hosted environments; a
	// file path is the local dev fallback.
	if credsJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); credsJSON != "" {
		log.Println("Using Firebase credentials from environment variable")
		opt = option.WithCredentialsJSON([]byte(credsJSON))
	} else if credsPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); credsPath != "" {
		log.Printf("Using Firebase credentials from file: %s", credsPath)
		opt = option.WithCredentialsFile(credsPath)
	} else {
		log.Println("No explicit Firebase credentials, relying on application default credentials")
	}

	var firebaseApp *fbapp.App
	fbConfig := &fbapp.Config{ProjectID: cfg.FirebaseProject}
	if opt != nil {
		firebaseApp, err = fbapp.NewApp(ctx, fbConfig, opt)
	} else {
		firebaseApp, err = fbapp.NewApp(ctx, fbConfig)
	}
	if err != nil {
		log.Fatalf("Failed to initialize Firebase app: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth client: %v", err)
	}

	var firestoreClient *firestore.Client
	if opt != nil {
		firestoreClient, err = firestore.NewClient(ctx, cfg.FirebaseProject, opt)
	} else {
		firestoreClient, err = firestore.NewClient(ctx, cfg.FirebaseProject)
	}
	if err != nil {
		log.Fatalf("Failed to initialize Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	messageStore := repository.NewFirestoreMessageStore(firestoreClient)
	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	changeFeed := repository.NewFirestoreChangeFeed(firestoreClient)

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	feedBridge := websocket.NewFeedBridge(changeFeed, messageStore, wsManager)
	feedBridge.Start()
	defer feedBridge.Close()

	messagingUseCase := usecase.NewMessagingUseCase(messageStore, userRepo)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	messagingHandler := handler.NewMessagingHandler(messagingUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager)
	healthHandler := handler.NewHealthHandler()

	router.Setup(e, messagingHandler, wsHandler, healthHandler, authMiddleware)

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
