package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/equiloan-api/internal/models"
	"github.com/noah-isme/equiloan-api/pkg/jobs"
)

// Lifecycle event names carried on every outbound message.
const (
	EventRequestSubmitted = "request.submitted"
	EventRequestApproved  = "request.approved"
	EventResponseRecorded = "response.recorded"
	EventWindowClosed     = "window.closed"
	EventRequestCompleted = "request.completed"
	EventRequestRejected  = "request.rejected"
	EventRequestClosed    = "request.closed"
	EventRequestExpired   = "request.expired"
)

// Message is one outbound notification addressed to a single recipient.
// Email and LineUserID select the channels that can carry it.
type Message struct {
	Event      string
	RequestID  string
	Email      string
	Recipient  string
	LineUserID string
	Subject    string
	Body       string
}

// Channel delivers messages over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type deliveryMetrics interface {
	RecordNotification(channel string, ok bool)
}

// Config carries the link bases embedded in outbound messages.
type Config struct {
	FormBaseURL string
	SlipBaseURL string
}

// Dispatcher fans lifecycle events out to the configured channels through a
// bounded retrying worker queue. Delivery is at-least-once best effort:
// failures are logged and counted, never surfaced to the caller, so a
// notification problem can never undo a committed transition.
type Dispatcher struct {
	cfg      Config
	channels map[string]Channel
	queue    *jobs.Queue
	metrics  deliveryMetrics
	logger   *zap.Logger
}

// NewDispatcher constructs a Dispatcher over the provided channels.
func NewDispatcher(cfg Config, channels []Channel, metrics deliveryMetrics, logger *zap.Logger, queueCfg jobs.QueueConfig) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		cfg:      cfg,
		channels: make(map[string]Channel, len(channels)),
		metrics:  metrics,
		logger:   logger,
	}
	for _, channel := range channels {
		d.channels[channel.Name()] = channel
	}
	queueCfg.Logger = logger
	d.queue = jobs.NewQueue("notifications", d.deliver, queueCfg)
	return d
}

// Start launches the delivery workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

// RequestSubmitted tells the reviewing staff a new request arrived.
func (d *Dispatcher) RequestSubmitted(request *models.Request, applicant *models.User, reviewers []models.User) {
	name := "an applicant"
	if applicant != nil {
		name = applicant.FullName
	}
	subject := "New equipment borrow request"
	body := fmt.Sprintf("%s submitted a borrow request for %s (%s to %s). Please review it in the loan console.",
		name, request.Venue, request.StartDate.Format("2006-01-02"), request.EndDate.Format("2006-01-02"))
	for _, reviewer := range reviewers {
		d.dispatch(Message{
			Event:     EventRequestSubmitted,
			RequestID: request.ID,
			Email:     reviewer.Email,
			Recipient: reviewer.FullName,
			Subject:   subject,
			Body:      body,
		})
	}
}

// RequestApproved sends each selected building its response-form link.
func (d *Dispatcher) RequestApproved(request *models.Request, tokens []models.ResponseToken, buildings map[string]models.Building) {
	for _, token := range tokens {
		building, ok := buildings[token.BuildingID]
		if !ok {
			d.logger.Warn("token references a building outside the approval set",
				zap.String("request_id", request.ID), zap.String("building_id", token.BuildingID))
			continue
		}
		link := fmt.Sprintf("%s/%s", d.cfg.FormBaseURL, token.Secret)
		msg := Message{
			Event:     EventRequestApproved,
			RequestID: request.ID,
			Email:     building.ContactEmail,
			Recipient: building.Name,
			Subject:   "Equipment availability check",
			Body: fmt.Sprintf("Please report your available quantities for borrow request %s before %s: %s",
				request.ID, token.ExpiresAt.Format("2006-01-02 15:04 MST"), link),
		}
		if building.LineUserID != nil {
			msg.LineUserID = *building.LineUserID
		}
		d.dispatch(msg)
	}
}

// ResponseRecorded tells the reviewing staff one building answered.
func (d *Dispatcher) ResponseRecorded(request *models.Request, building *models.Building, reviewers []models.User) {
	buildingName := "a building"
	if building != nil {
		buildingName = building.Name
	}
	for _, reviewer := range reviewers {
		d.dispatch(Message{
			Event:     EventResponseRecorded,
			RequestID: request.ID,
			Email:     reviewer.Email,
			Recipient: reviewer.FullName,
			Subject:   "Building availability received",
			Body:      fmt.Sprintf("%s reported availability for request %s.", buildingName, request.ID),
		})
	}
}

// WindowClosed tells staff the round finished and allocation can start.
func (d *Dispatcher) WindowClosed(request *models.Request, reviewers []models.User, complete bool) {
	body := fmt.Sprintf("All buildings responded for request %s. The allocation plan can now be finalized.", request.ID)
	if !complete {
		body = fmt.Sprintf("The response window for request %s expired; missing buildings count as zero availability. The allocation plan can now be finalized.", request.ID)
	}
	for _, reviewer := range reviewers {
		d.dispatch(Message{
			Event:     EventWindowClosed,
			RequestID: request.ID,
			Email:     reviewer.Email,
			Recipient: reviewer.FullName,
			Subject:   "Response window closed",
			Body:      body,
		})
	}
}

// RequestCompleted sends the applicant the signed borrow-slip link.
func (d *Dispatcher) RequestCompleted(request *models.Request, applicant *models.User, slipToken string) {
	if applicant == nil {
		d.logger.Warn("completion notice has no applicant recipient", zap.String("request_id", request.ID))
		return
	}
	link := fmt.Sprintf("%s/%s", d.cfg.SlipBaseURL, slipToken)
	d.dispatch(Message{
		Event:     EventRequestCompleted,
		RequestID: request.ID,
		Email:     applicant.Email,
		Recipient: applicant.FullName,
		Subject:   "Your equipment request is approved",
		Body: fmt.Sprintf("Your borrow request %s has been finalized. Download your borrow slip here: %s",
			request.ID, link),
	})
}

// RequestRejected tells the applicant the request was declined.
func (d *Dispatcher) RequestRejected(request *models.Request, applicant *models.User, reason string) {
	if applicant == nil {
		return
	}
	d.dispatch(Message{
		Event:     EventRequestRejected,
		RequestID: request.ID,
		Email:     applicant.Email,
		Recipient: applicant.FullName,
		Subject:   "Your equipment request was rejected",
		Body:      fmt.Sprintf("Your borrow request %s was rejected. Reason: %s", request.ID, reason),
	})
}

// RequestClosed tells the applicant the request was cancelled by staff.
func (d *Dispatcher) RequestClosed(request *models.Request, applicant *models.User, reason string) {
	if applicant == nil {
		return
	}
	body := fmt.Sprintf("Your borrow request %s has been closed.", request.ID)
	if reason != "" {
		body = fmt.Sprintf("%s Reason: %s", body, reason)
	}
	d.dispatch(Message{
		Event:     EventRequestClosed,
		RequestID: request.ID,
		Email:     applicant.Email,
		Recipient: applicant.FullName,
		Subject:   "Your equipment request was closed",
		Body:      body,
	})
}

// RequestExpired tells the applicant the request lapsed without action.
func (d *Dispatcher) RequestExpired(request *models.Request, applicant *models.User) {
	if applicant == nil {
		return
	}
	d.dispatch(Message{
		Event:     EventRequestExpired,
		RequestID: request.ID,
		Email:     applicant.Email,
		Recipient: applicant.FullName,
		Subject:   "Your equipment request expired",
		Body:      fmt.Sprintf("Your borrow request %s reached its deadline without completion and was closed automatically.", request.ID),
	})
}

// dispatch enqueues one delivery job per channel able to carry the message.
func (d *Dispatcher) dispatch(msg Message) {
	for name, channel := range d.channels {
		if !accepts(channel, msg) {
			continue
		}
		job := jobs.Job{ID: uuid.NewString(), Type: name, Payload: msg}
		if err := d.queue.TryEnqueue(job); err != nil {
			d.logger.Warn("notification dropped",
				zap.String("event", msg.Event), zap.String("channel", name), zap.Error(err))
			if d.metrics != nil {
				d.metrics.RecordNotification(name, false)
			}
		}
	}
}

func accepts(channel Channel, msg Message) bool {
	switch channel.Name() {
	case ChannelEmail:
		return msg.Email != ""
	case ChannelLine:
		return msg.LineUserID != ""
	}
	return false
}

func (d *Dispatcher) deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(Message)
	if !ok {
		d.logger.Error("notification job carries an unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	channel, ok := d.channels[job.Type]
	if !ok {
		d.logger.Error("notification job targets an unknown channel", zap.String("channel", job.Type))
		return nil
	}

	err := channel.Send(ctx, msg)
	if d.metrics != nil {
		d.metrics.RecordNotification(job.Type, err == nil)
	}
	if err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("event", msg.Event), zap.String("channel", job.Type),
			zap.String("request_id", msg.RequestID), zap.Error(err))
		return err
	}
	return nil
}
