package cron

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

type trackingSyncer interface {
	SyncTracking(ctx context.Context, limit int) (int, error)
}

type LabelTrackingJobParams struct {
	Logger    *logger.Logger
	Labels    trackingSyncer
	BatchSize int
}

// NewLabelTrackingJob polls the carrier for every printed or posted label.
func NewLabelTrackingJob(params LabelTrackingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Labels == nil {
		return nil, fmt.Errorf("label service required")
	}
	return &labelTrackingJob{logg: params.Logger, labels: params.Labels, batchSize: batchSize(params.BatchSize)}, nil
}

type labelTrackingJob struct {
	logg      *logger.Logger
	labels    trackingSyncer
	batchSize int
}

func (j *labelTrackingJob) Name() string { return "label-tracking-sync" }

func (j *labelTrackingJob) Run(ctx context.Context) error {
	changed, err := j.labels.SyncTracking(ctx, j.batchSize)
	j.logg.Info(j.logg.WithField(ctx, "labels_changed", changed), "label tracking sync complete")
	if err != nil {
		return fmt.Errorf("label tracking sync: %w", err)
	}
	return nil
}

type fiscalRetrier interface {
	RetryPendingFiscal(ctx context.Context, limit int) (int, error)
}

type tokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

type FiscalRetryJobParams struct {
	Logger    *logger.Logger
	ERP       fiscalRetrier
	Tokens    tokenSource
	BatchSize int
}

// NewFiscalRetryJob resumes fiscal documents left pending or processing. The
// run is skipped while the ERP grant needs an operator to reauthorize.
func NewFiscalRetryJob(params FiscalRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.ERP == nil {
		return nil, fmt.Errorf("erp sync service required")
	}
	return &fiscalRetryJob{
		logg:      params.Logger,
		erp:       params.ERP,
		tokens:    params.Tokens,
		batchSize: batchSize(params.BatchSize),
	}, nil
}

type fiscalRetryJob struct {
	logg      *logger.Logger
	erp       fiscalRetrier
	tokens    tokenSource
	batchSize int
}

func (j *fiscalRetryJob) Name() string { return "fiscal-retry" }

func (j *fiscalRetryJob) Run(ctx context.Context) error {
	if j.tokens != nil {
		if _, err := j.tokens.Token(ctx); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeReauthorization) {
				j.logg.Warn(ctx, "fiscal retry skipped: erp needs reauthorization")
				return nil
			}
			return fmt.Errorf("erp token: %w", err)
		}
	}
	retried, err := j.erp.RetryPendingFiscal(ctx, j.batchSize)
	j.logg.Info(j.logg.WithField(ctx, "documents_advanced", retried), "fiscal retry complete")
	if err != nil {
		return fmt.Errorf("fiscal retry: %w", err)
	}
	return nil
}
