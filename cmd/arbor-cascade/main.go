// Command arbor-cascade is an AWS Lambda function that cascades soft deletes
// and restores recorded on an arbor node table's stream to the affected
// subtrees.
//
// Environment:
//
//	ARBOR_TABLE      node table name (default "arbor_nodes")
//	ARBOR_LOG_LEVEL  debug, info, warn or error (default info)
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/arbor/dynamostore"
	"github.com/jacentio/arbor/stream"
)

func main() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("ARBOR_LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	storeCfg := dynamostore.DefaultConfig()
	if table := os.Getenv("ARBOR_TABLE"); table != "" {
		storeCfg.Table = table
	}
	storeCfg.Logger = logger

	s := dynamostore.New(dynamodb.NewFromConfig(cfg), storeCfg)
	h := stream.NewHandler(s, logger)

	logger.Info("starting cascade handler", "table", storeCfg.Table)
	lambda.Start(h.HandleCascade)
}
