// Package dispatch runs an uploaded contact list through parsing,
// roster selection, distribution and persistence.
package dispatch

import (
	"context"
	"io"
	"time"

	"github.com/odvcencio/leadsplit/pkg/bus"
	"github.com/odvcencio/leadsplit/pkg/distribute"
	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
	"github.com/odvcencio/leadsplit/pkg/ingest"
	"github.com/odvcencio/leadsplit/pkg/logging"
	"github.com/odvcencio/leadsplit/pkg/storage"
)

// DefaultMaxAgents is how many active agents share one upload when the
// caller does not say otherwise.
const DefaultMaxAgents = 5

const (
	msgNoUsableRows = "No valid data found in file. Please ensure the file contains FirstName, Phone, and Notes columns."
	msgServerError  = "Server error during file upload"
)

// Store is the persistence the service needs.
type Store interface {
	ListEligibleAgents(ctx context.Context, limit int) ([]storage.Agent, error)
	SaveDistribution(ctx context.Context, d *storage.Distribution) error
}

// Upload is one submitted file.
type Upload struct {
	FileName   string
	Body       io.Reader
	UploadedBy storage.Uploader
}

// Service distributes uploaded lists across the active roster.
type Service struct {
	store     Store
	bus       bus.MessageBus
	logger    *logging.Logger
	maxAgents int
}

// Option customizes a Service.
type Option func(*Service)

// WithBus publishes a distribution event after every saved upload.
func WithBus(b bus.MessageBus) Option {
	return func(s *Service) { s.bus = b }
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxAgents caps the roster size per upload.
func WithMaxAgents(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAgents = n
		}
	}
}

// NewService builds a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    logging.Nop(),
		maxAgents: DefaultMaxAgents,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload parses the file, splits its records across the newest active
// agents and stores the result. The event publish is best effort.
func (s *Service) Upload(ctx context.Context, up Upload) (*storage.Distribution, error) {
	log := s.logger.WithUpload(up.FileName, up.UploadedBy.Email)
	start := time.Now()

	format, err := ingest.FormatFromFilename(up.FileName)
	if err != nil {
		return nil, err
	}

	records, err := ingest.Parse(up.Body, format)
	if err != nil {
		log.WithError(err).Warn("upload parse failed", "format", format.String())
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeNoUsableRows, "file produced no usable records").
			WithContext("file", up.FileName).
			WithUserMessage(msgNoUsableRows)
	}

	roster, err := s.roster(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := distribute.Distribute(records, roster)
	if err != nil {
		return nil, err
	}
	digest, err := plan.Digest()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "digest plan").
			WithUserMessage(msgServerError)
	}

	d := &storage.Distribution{
		FileName:     up.FileName,
		TotalRecords: plan.TotalRecords,
		PlanDigest:   digest,
		UploadedBy:   up.UploadedBy,
		Shares:       make([]storage.AssignedShare, len(plan.Shares)),
	}
	for i, share := range plan.Shares {
		d.Shares[i] = storage.AssignedShare{
			AgentID:   share.Agent.ID,
			AgentName: share.Agent.Name,
			Records:   share.Records,
		}
	}
	if err := s.store.SaveDistribution(ctx, d); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "save distribution").
			WithContext("file", up.FileName).
			WithUserMessage(msgServerError)
	}

	s.publish(ctx, log, d)

	log.Info("upload distributed",
		"distribution_id", d.ID,
		"format", format.String(),
		"records", plan.TotalRecords,
		"agents", len(roster),
		"shares", plan.Sizes(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return d, nil
}

// roster returns the newest active agents in distribution order.
func (s *Service) roster(ctx context.Context) ([]distribute.AgentRef, error) {
	agents, err := s.store.ListEligibleAgents(ctx, s.maxAgents)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "list eligible agents").
			WithUserMessage(msgServerError)
	}
	roster := make([]distribute.AgentRef, len(agents))
	for i, a := range agents {
		roster[i] = distribute.AgentRef{ID: a.ID, Name: a.Name}
	}
	return roster, nil
}

func (s *Service) publish(ctx context.Context, log *logging.Logger, d *storage.Distribution) {
	if s.bus == nil {
		return
	}
	ev := bus.DistributionCreated{
		DistributionID: d.ID,
		FileName:       d.FileName,
		TotalRecords:   d.TotalRecords,
		PlanDigest:     d.PlanDigest,
		UploadedBy:     d.UploadedBy.Email,
		Assignments:    make([]bus.AgentAssignment, len(d.Shares)),
		CreatedAt:      d.CreatedAt,
	}
	for i, share := range d.Shares {
		ev.Assignments[i] = bus.AgentAssignment{
			AgentID:   share.AgentID,
			AgentName: share.AgentName,
			Records:   len(share.Records),
		}
	}
	if err := bus.PublishDistributionCreated(ctx, s.bus, ev); err != nil {
		log.WithError(err).Warn("distribution event not published", "distribution_id", d.ID)
	}
}
