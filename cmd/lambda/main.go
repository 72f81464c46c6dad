package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"

	"cardvault/infrastructure/config"
	"cardvault/infrastructure/di"
	"cardvault/interfaces/http/rest"
	"cardvault/interfaces/http/rest/handlers"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container
)

// init runs during cold start.
func init() {
	start := time.Now()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	cardHandler := handlers.NewCardHandler(container.CardService, cfg, container.Logger)
	router := rest.NewRouter(cfg, cardHandler, container.Logger)

	chiRouter, ok := router.(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast router to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	log.Printf("Lambda cold start completed in %v", time.Since(start))
}

// Handler proxies API Gateway v2 requests through the chi router.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
