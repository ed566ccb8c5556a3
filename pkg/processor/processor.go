// Package processor turns document extraction messages into profile merges
package processor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/fieldmapping"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ExtractionMessage is one document's extraction addressed to a person.
// Payload is run through the category alias table; Fields are already
// canonical and win over mapped values.
type ExtractionMessage struct {
	PersonID         string             `json:"person_id" validate:"required"`
	DocumentID       string             `json:"document_id" validate:"required"`
	Category         string             `json:"category"`
	Payload          map[string]any     `json:"payload,omitempty"`
	Fields           map[string]any     `json:"fields,omitempty"`
	FieldConfidences map[string]float64 `json:"field_confidences,omitempty" validate:"dive,gte=0,lte=100"`
}

// Mapper produces canonical fields from a raw payload
type Mapper interface {
	Map(ctx context.Context, payload map[string]any, category models.DocumentCategory) fieldmapping.Mapping
}

// Merger applies canonical fields to a profile
type Merger interface {
	MergeToProfile(ctx context.Context, personID string, fields map[string]any, documentID string, confidences map[string]float64) (*models.MergeResult, error)
}

// Emitter announces merges
type Emitter interface {
	EmitProfileMerged(ctx context.Context, personID, documentID string, result *models.MergeResult) error
}

// Config controls merge retries on serialization conflicts
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		InitialInterval: 50 * time.Millisecond,
	}
}

// Processor handles extraction messages
type Processor struct {
	logger    ectologger.Logger
	mapper    Mapper
	merger    Merger
	emitter   Emitter
	fields    *schema.Validator
	validate  *validator.Validate
	config    Config
	retryable func(error) bool
}

// NewProcessor creates a new extraction processor. emitter may be nil.
func NewProcessor(logger ectologger.Logger, mapper Mapper, merger Merger, emitter Emitter, config Config) *Processor {
	return &Processor{
		logger:    logger,
		mapper:    mapper,
		merger:    merger,
		emitter:   emitter,
		fields:    schema.NewValidator(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		config:    config,
		retryable: database.IsSerializationFailure,
	}
}

// HandleMessage is the kafka.MessageHandler for the extraction topic.
// Messages that cannot be decoded or fail validation are reported as
// kafka.ErrPoisonMessage so the consumer commits past them.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"person_id":   msg.Peek("person_id").String(),
		"document_id": msg.Peek("document_id").String(),
		"offset":      msg.Offset,
	})

	var extraction ExtractionMessage
	if err := msg.Decode(&extraction); err != nil {
		log.WithError(err).Warn("Could not decode extraction message")
		return err
	}
	if err := p.validate.Struct(extraction); err != nil {
		log.WithError(err).Warn("Invalid extraction message")
		return fmt.Errorf("%w: %v", kafka.ErrPoisonMessage, err)
	}

	if _, err := p.Process(ctx, extraction); err != nil {
		// client errors fail the same way on every delivery
		if code := httperror.GetStatusCode(err); httperror.IsHTTPError(err) && code >= http.StatusBadRequest && code < http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", kafka.ErrPoisonMessage, err)
		}
		return err
	}
	return nil
}

// Process maps, validates and merges one extraction, then emits
// profile.merged. Serialization conflicts are retried with backoff since the
// merge is idempotent for the same inputs.
func (p *Processor) Process(ctx context.Context, msg ExtractionMessage) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Process")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"person_id":   msg.PersonID,
		"document_id": msg.DocumentID,
		"category":    msg.Category,
	})

	fields, confidences := p.canonicalFields(ctx, msg)
	if report := p.fields.Validate(fields); !report.Valid {
		log.WithField("issues", len(report.Errors)).Warn("Extracted fields failed validation, merging anyway")
	}

	var result *models.MergeResult
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.config.InitialInterval

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var mergeErr error
		result, mergeErr = p.merger.MergeToProfile(ctx, msg.PersonID, fields, msg.DocumentID, confidences)
		if mergeErr != nil && !p.retryable(mergeErr) {
			return backoff.Permanent(mergeErr)
		}
		if mergeErr != nil {
			log.WithError(mergeErr).WithField("attempt", attempt).Warn("Merge conflicted, retrying")
		}
		return mergeErr
	}, backoff.WithContext(backoff.WithMaxRetries(policy, p.config.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}

	if p.emitter != nil {
		if emitErr := p.emitter.EmitProfileMerged(ctx, msg.PersonID, msg.DocumentID, result); emitErr != nil {
			// the merge is committed; a lost event is not worth a redelivery
			log.WithError(emitErr).Warn("Merged but could not emit event")
		}
	}

	return result, nil
}

func (p *Processor) canonicalFields(ctx context.Context, msg ExtractionMessage) (map[string]any, map[string]float64) {
	fields := map[string]any{}
	confidences := map[string]float64{}

	if len(msg.Payload) > 0 {
		mapping := p.mapper.Map(ctx, msg.Payload, models.ParseDocumentCategory(msg.Category))
		for k, v := range mapping.Fields {
			fields[k] = v
		}
		for k, c := range mapping.Confidences {
			confidences[k] = c
		}
	}
	for k, v := range msg.Fields {
		fields[k] = v
	}
	for k, c := range msg.FieldConfidences {
		confidences[k] = c
	}

	return fields, confidences
}
