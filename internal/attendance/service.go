package attendance

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"presence/internal/apperror"
	"presence/internal/events"
	"presence/internal/geo"
	"presence/internal/queue"
)

// Client-facing validation messages, checked in this order.
const (
	MsgMissingData   = "missing data"
	MsgNameRequired  = "name required"
	MsgGPSMissing    = "GPS position missing"
	MsgGPSOutOfRange = "GPS position out of range"
	MsgRecorded      = "presence recorded"
)

// SubmitRequest is the JSON body of a presence submission. Coordinates are
// pointers so that an absent value can be told apart from 0.
type SubmitRequest struct {
	Name      string   `json:"name"`
	Course    string   `json:"cours"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

// Outcome is the result of an evaluated submission.
type Outcome struct {
	Message   string  `json:"message"`
	DistanceM float64 `json:"distance_m"`
	Status    Status  `json:"status"`
	RecordID  int64   `json:"-"`
}

// Store is the persistence the service needs.
type Store interface {
	EnsureStudent(ctx context.Context, name string) (int64, error)
	AppendRecord(ctx context.Context, rec Record) (Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

// Observer is told about every submission outcome.
type Observer interface {
	ObserveRecorded(status string, distanceM float64)
	ObserveFailure(reason string)
}

// Publisher delivers events to the queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Option configures a Service.
type Option func(*Service)

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

// WithPublisher attaches an event publisher.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithDefaultCourse sets the course used when a submission names none.
func WithDefaultCourse(course string) Option { return func(s *Service) { s.defaultCourse = course } }

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service validates, evaluates and persists presence submissions.
type Service struct {
	store         Store
	policy        Policy
	observer      Observer
	publisher     Publisher
	validate      *validator.Validate
	defaultCourse string
	now           func() time.Time
	log           *zap.Logger
}

// NewService creates a service gating submissions with policy.
func NewService(store Store, policy Policy, opts ...Option) *Service {
	s := &Service{
		store:         store,
		policy:        policy,
		observer:      nopObserver{},
		validate:      validator.New(),
		defaultCourse: "math1",
		now:           time.Now,
		log:           zap.L().Named("attendance.service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit evaluates one submission. Validation failures are returned as 400
// AppErrors and write nothing. A refusal is not an error: it is persisted and
// reported through Outcome.Status. Storage failures are returned as 500s.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (Outcome, error) {
	if err := s.check(req); err != nil {
		s.observer.ObserveFailure("validation")
		return Outcome{}, err
	}

	name := strings.TrimSpace(req.Name)
	course := strings.TrimSpace(req.Course)
	if course == "" {
		course = s.defaultCourse
	}
	pos := geo.Point{Lat: *req.Latitude, Lon: *req.Longitude}
	distance, status := s.policy.Evaluate(pos)

	studentID, err := s.store.EnsureStudent(ctx, name)
	if err != nil {
		return Outcome{}, s.storageFailure(fmt.Errorf("ensure student: %w", err), name)
	}

	rec, err := s.store.AppendRecord(ctx, Record{
		StudentID: &studentID,
		Name:      name,
		Course:    course,
		CreatedAt: s.now().UTC(),
		Latitude:  pos.Lat,
		Longitude: pos.Lon,
		DistanceM: distance,
		Status:    status,
	})
	if err != nil {
		return Outcome{}, s.storageFailure(fmt.Errorf("append record: %w", err), name)
	}

	s.observer.ObserveRecorded(string(status), distance)
	s.publish(ctx, rec)

	s.log.Info("presence recorded",
		zap.Int64("record_id", rec.ID),
		zap.String("name", name),
		zap.String("course", course),
		zap.Float64("distance_m", distance),
		zap.String("status", string(status)),
	)
	return s.outcome(rec), nil
}

// Recent returns the latest records, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Record, error) {
	recs, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("list recent: %w", err))
	}
	return recs, nil
}

func (s *Service) check(req *SubmitRequest) error {
	if req == nil {
		return apperror.Invalid(MsgMissingData)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperror.Invalid(MsgNameRequired)
	}
	if req.Latitude == nil || req.Longitude == nil {
		return apperror.Invalid(MsgGPSMissing)
	}
	if err := s.validate.Struct(req); err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidInput, MsgGPSOutOfRange, http.StatusBadRequest)
	}
	return nil
}

func (s *Service) outcome(rec Record) Outcome {
	out := Outcome{
		DistanceM: math.Round(rec.DistanceM*100) / 100,
		Status:    rec.Status,
		RecordID:  rec.ID,
	}
	if rec.Status == StatusAccepted {
		out.Message = MsgRecorded
	} else {
		out.Message = refusedMessage(rec.DistanceM, s.policy.MaxDistanceM)
	}
	return out
}

// refusedMessage reports the distance in whole meters, or to the centimeter
// when whole meters would read as within the threshold.
func refusedMessage(distance, threshold float64) string {
	if math.Round(distance) <= threshold {
		return fmt.Sprintf("too far from the classroom: %.2f m (max %g m)", distance, threshold)
	}
	return fmt.Sprintf("too far from the classroom: %.0f m (max %g m)", distance, threshold)
}

func (s *Service) storageFailure(err error, name string) error {
	s.observer.ObserveFailure("storage")
	s.log.Error("submission not persisted", zap.String("name", name), zap.Error(err))
	return apperror.Internal(err)
}

// publish is best effort: the record is already durable.
func (s *Service) publish(ctx context.Context, rec Record) {
	if s.publisher == nil {
		return
	}
	msg, err := queue.NewMessage(events.TypePresenceRecorded, events.PresenceRecorded{
		RecordID:   rec.ID,
		Name:       rec.Name,
		Course:     rec.Course,
		Status:     string(rec.Status),
		DistanceM:  rec.DistanceM,
		RecordedAt: rec.CreatedAt,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn("queue publish failed", zap.Int64("record_id", rec.ID), zap.Error(err))
	}
}

type nopObserver struct{}

func (nopObserver) ObserveRecorded(string, float64) {}
func (nopObserver) ObserveFailure(string)           {}
