package nlp

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
	"github.com/capitalize-ai/concierge-platform/pkg/metrics"
)

// Stage outcomes recorded in metrics.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeAbstain  = "abstain"
	outcomeFault    = "fault"
)

// Stage is one step of the cascade. A result is accepted when its
// confidence is strictly above Threshold, or unconditionally when
// Terminal is set.
type Stage struct {
	Name       string
	Classifier Classifier
	Threshold  float64
	Timeout    time.Duration
	Terminal   bool
}

// Cascade runs stages in order until one accepts.
type Cascade struct {
	stages []Stage
	logger *logger.Logger
}

// NewCascade creates a cascade over stages.
func NewCascade(log *logger.Logger, stages ...Stage) *Cascade {
	if log == nil {
		log = logger.Nop()
	}
	return &Cascade{stages: stages, logger: log}
}

// Stages returns the stage names in evaluation order.
func (c *Cascade) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name
	}
	return names
}

// Classify never fails. A fault in any stage yields Fallback().
func (c *Cascade) Classify(ctx context.Context, message string, cc *model.ConversationContext, tenantID string) (result *model.ClassificationResult) {
	log := c.logger.WithTurn(tenantID, conversationID(cc))

	defer func() {
		if r := recover(); r != nil {
			log.Error("classification panicked", zap.Any("panic", r))
			result = Fallback()
		}
	}()

	for _, stage := range c.stages {
		res, accepted, err := c.run(ctx, stage, message, cc)
		if err != nil {
			log.Warn("classification stage failed",
				zap.String("stage", stage.Name),
				zap.Error(err),
			)
			return Fallback()
		}
		if accepted {
			log.Debug("intent classified",
				zap.String("stage", stage.Name),
				zap.String("intent", res.Intent),
				zap.Float64("confidence", res.Confidence),
			)
			return res
		}
	}

	return normalize(nil, "")
}

func (c *Cascade) run(ctx context.Context, stage Stage, message string, cc *model.ConversationContext) (*model.ClassificationResult, bool, error) {
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := stage.Classifier.DetectIntent(ctx, message, cc)
	elapsed := time.Since(start).Seconds()

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		metrics.RecordStage(stage.Name, outcomeFault, elapsed)
		return nil, false, fmt.Errorf("%s: %w", stage.Name, err)
	}
	if raw == nil {
		metrics.RecordStage(stage.Name, outcomeAbstain, elapsed)
		return nil, false, nil
	}

	res := normalize(raw, stage.Name)
	if !stage.Terminal && res.Confidence <= stage.Threshold {
		metrics.RecordStage(stage.Name, outcomeRejected, elapsed)
		return res, false, nil
	}
	metrics.RecordStage(stage.Name, outcomeAccepted, elapsed)
	return res, true, nil
}
