package sqsgath

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

const defaultRegion = "eu-central-1"

type sendMessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NewSqsResponseQueueGatherer loads the default AWS config and sends every
// progress message to queueUrl.
func NewSqsResponseQueueGatherer(ctx context.Context, region string, queueUrl string, logger *slog.Logger) (*sqsResQueueGatherer, error) {
	if region == "" {
		region = defaultRegion
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newGatherer(ctx, sqs.NewFromConfig(cfg), queueUrl, logger), nil
}

func newGatherer(ctx context.Context, client sendMessageAPI, queueUrl string, logger *slog.Logger) *sqsResQueueGatherer {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqsResQueueGatherer{
		ctx:       ctx,
		sqsClient: client,
		queueUrl:  queueUrl,
		logger:    logger.With("component", "sqsgath"),
	}
}
