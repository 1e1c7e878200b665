package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/tsa/internal/analysis"
	"github.com/smukkama/tsa/internal/protocol"
)

type batchRunner interface {
	RunBatch(ctx context.Context, collections []*analysis.Collection) ([]*analysis.CollectionResult, error)
}

type resultSaver interface {
	SaveCollection(ctx context.Context, res *analysis.CollectionResult) error
}

type resultPublisher interface {
	PublishCollection(ctx context.Context, requestID string, res *analysis.CollectionResult) error
}

// requestHandler evaluates one analysis request and hands the results to
// the result store and the results topic
type requestHandler struct {
	runner    batchRunner
	results   resultSaver
	publisher resultPublisher
	maxGap    time.Duration
	logger    *zap.SugaredLogger
}

// handle returns an error only for undecodable requests and cancellation.
// Sink failures are logged so one bad sink does not block the queue.
func (h *requestHandler) handle(ctx context.Context, data []byte) error {
	req, err := protocol.DecodeAnalysisRequest(data)
	if err != nil {
		return err
	}
	h.logger.Infof("Received request %s with %d collections", req.RequestID, len(req.Definition.Collections))

	req.Definition.DefaultMaxGap(h.maxGap)
	collections, err := req.Definition.Build()
	if err != nil {
		return fmt.Errorf("request %s: %w", req.RequestID, err)
	}

	res, err := h.runner.RunBatch(ctx, collections)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.RequestID, err)
	}

	for _, r := range res {
		if err := h.results.SaveCollection(ctx, r); err != nil {
			h.logger.Errorf("Failed to save results of %q: %v", r.Title, err)
		}
		if err := h.publisher.PublishCollection(ctx, req.RequestID, r); err != nil {
			h.logger.Errorf("Failed to publish results of %q: %v", r.Title, err)
		}
	}
	return nil
}
