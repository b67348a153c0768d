package axm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/axm-go/internal/retry"
)

// Poller defaults.
const (
	DefaultActivitySettle = 30 * time.Second
	DefaultPollInterval   = 15 * time.Second
	DefaultMaxPolls       = 20
)

// ActivityKind is the activityType sent when creating a device activity.
type ActivityKind string

// Supported activity kinds.
const (
	ActivityAssign   ActivityKind = "ASSIGN_DEVICES"
	ActivityUnassign ActivityKind = "UNASSIGN_DEVICES"
)

// ParseActivityKind accepts "assign"/"unassign" in any case, or the wire names.
func ParseActivityKind(s string) (ActivityKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASSIGN", string(ActivityAssign):
		return ActivityAssign, nil
	case "UNASSIGN", string(ActivityUnassign):
		return ActivityUnassign, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidActivity, s)
	}
}

// ActivityStatus is the local view of an activity's lifecycle.
type ActivityStatus string

// Activity states. COMPLETED and FAILED are terminal.
const (
	StatusCreated    ActivityStatus = "CREATED"
	StatusProcessing ActivityStatus = "PROCESSING"
	StatusCompleted  ActivityStatus = "COMPLETED"
	StatusFailed     ActivityStatus = "FAILED"
)

// ParseActivityStatus maps a server status string to a local state.
func ParseActivityStatus(s string) ActivityStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COMPLETED":
		return StatusCompleted
	case "FAILED", "STOPPED":
		return StatusFailed
	case "", "CREATED":
		return StatusCreated
	default:
		return StatusProcessing
	}
}

// Terminal reports whether no further transition can happen.
func (s ActivityStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Activity is a device assignment job. DownloadURL is pre-signed; never log it.
type Activity struct {
	ID           string
	Kind         ActivityKind
	Status       ActivityStatus
	ServerStatus string
	SubStatus    string
	CreatedAt    time.Time
	CompletedAt  time.Time
	DownloadURL  string
}

// ActivityResult is the outcome of a completed activity. Artifact is nil when
// the server offered no log file.
type ActivityResult struct {
	Activity Activity
	Artifact []byte
	Filename string
}

// PollerConfig tunes the wait schedule. Zero values use the defaults.
type PollerConfig struct {
	Settle       time.Duration
	PollInterval time.Duration
	MaxPolls     int
	Logger       *slog.Logger
}

// Poller creates device activities and follows them to a terminal state.
type Poller struct {
	client       *Client
	settle       time.Duration
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger

	// sleepFunc waits out the settle and poll intervals. Tests override it.
	sleepFunc retry.SleepFunc
}

// NewPoller creates a Poller that issues requests through client.
func NewPoller(client *Client, cfg PollerConfig) *Poller {
	p := &Poller{
		client:       client,
		settle:       cfg.Settle,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		logger:       cfg.Logger,
		sleepFunc:    retry.Sleep,
	}

	if p.settle <= 0 {
		p.settle = DefaultActivitySettle
	}

	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}

	if p.maxPolls <= 0 {
		p.maxPolls = DefaultMaxPolls
	}

	if p.logger == nil {
		p.logger = client.logger
	}

	return p
}

// RunActivity creates an activity that assigns or unassigns deviceRefs
// (serial numbers) to mdmServerID, waits for it to finish, and downloads its
// result log if one is offered.
func (p *Poller) RunActivity(ctx context.Context, kind ActivityKind, deviceRefs []string, mdmServerID string) (*ActivityResult, error) {
	if err := validateActivity(kind, deviceRefs, mdmServerID); err != nil {
		return nil, err
	}

	act, err := p.create(ctx, kind, deviceRefs, mdmServerID)
	if err != nil {
		return nil, &ActivityError{Kind: kind, Status: StatusCreated, Reason: ErrActivityFailed, Err: err}
	}

	p.logger.Info("device activity created",
		slog.String("activity_id", act.ID),
		slog.String("kind", string(kind)),
		slog.String("mdm_server_id", mdmServerID),
		slog.Int("devices", len(deviceRefs)),
	)

	if err := p.sleepFunc(ctx, p.settle); err != nil {
		return nil, fmt.Errorf("axm: waiting for activity %s: %w", act.ID, err)
	}

	for polls := 1; ; polls++ {
		prev := act.Status

		if err := p.refresh(ctx, &act); err != nil {
			return nil, activityErr(act, polls, ErrActivityFailed, err)
		}

		if act.Status != prev {
			p.logger.Info("device activity status changed",
				slog.String("activity_id", act.ID),
				slog.String("from", string(prev)),
				slog.String("to", string(act.Status)),
				slog.String("sub_status", act.SubStatus),
			)
		}

		switch act.Status {
		case StatusCompleted:
			return p.complete(ctx, act)
		case StatusFailed:
			return nil, activityErr(act, polls, ErrActivityFailed, nil)
		}

		if polls >= p.maxPolls {
			return nil, activityErr(act, polls, ErrActivityTimeout, nil)
		}

		if err := p.sleepFunc(ctx, p.pollInterval); err != nil {
			return nil, fmt.Errorf("axm: waiting for activity %s: %w", act.ID, err)
		}
	}
}

func validateActivity(kind ActivityKind, deviceRefs []string, mdmServerID string) error {
	var errs []error

	if kind != ActivityAssign && kind != ActivityUnassign {
		errs = append(errs, fmt.Errorf("unknown kind %q", kind))
	}

	if len(deviceRefs) == 0 {
		errs = append(errs, errors.New("no devices"))
	}

	for _, d := range deviceRefs {
		if strings.TrimSpace(d) == "" {
			errs = append(errs, errors.New("empty device reference"))
			break
		}
	}

	if strings.TrimSpace(mdmServerID) == "" {
		errs = append(errs, errors.New("mdm server id is empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidActivity, errors.Join(errs...))
	}

	return nil
}

type linkage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type activityRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			ActivityType ActivityKind `json:"activityType"`
		} `json:"attributes"`
		Relationships struct {
			MDMServer struct {
				Data linkage `json:"data"`
			} `json:"mdmServer"`
			Devices struct {
				Data []linkage `json:"data"`
			} `json:"devices"`
		} `json:"relationships"`
	} `json:"data"`
}

type activityAttributes struct {
	Status            string `json:"status"`
	SubStatus         string `json:"subStatus"`
	CreatedDateTime   string `json:"createdDateTime"`
	CompletedDateTime string `json:"completedDateTime"`
	DownloadURL       string `json:"downloadUrl"`
}

type activityDocument struct {
	Data struct {
		ID         string             `json:"id"`
		Attributes activityAttributes `json:"attributes"`
	} `json:"data"`
}

// create POSTs a new activity. The POST is not idempotent but still goes
// through the 5xx retry, so a 5xx returned after the server accepted the
// request can leave a duplicate activity behind.
func (p *Poller) create(ctx context.Context, kind ActivityKind, deviceRefs []string, mdmServerID string) (Activity, error) {
	var body activityRequest
	body.Data.Type = "orgDeviceActivities"
	body.Data.Attributes.ActivityType = kind
	body.Data.Relationships.MDMServer.Data = linkage{Type: "mdmServers", ID: mdmServerID}

	for _, d := range deviceRefs {
		body.Data.Relationships.Devices.Data = append(body.Data.Relationships.Devices.Data,
			linkage{Type: "orgDevices", ID: strings.TrimSpace(d)})
	}

	resp, err := p.client.Execute(ctx, http.MethodPost, "/orgDeviceActivities", body)
	if err != nil {
		return Activity{}, err
	}

	var doc activityDocument
	if err := decodeJSON(resp, &doc); err != nil {
		return Activity{}, err
	}

	if doc.Data.ID == "" {
		return Activity{}, errors.New("axm: activity created without an id")
	}

	act := Activity{ID: doc.Data.ID, Kind: kind}
	applyAttributes(&act, doc.Data.Attributes)

	// The first poll decides the state; creation itself is always CREATED.
	act.Status = StatusCreated

	return act, nil
}

func (p *Poller) refresh(ctx context.Context, act *Activity) error {
	var doc activityDocument
	if err := p.client.getJSON(ctx, "/orgDeviceActivities/"+url.PathEscape(act.ID), &doc); err != nil {
		return err
	}

	applyAttributes(act, doc.Data.Attributes)

	return nil
}

func applyAttributes(act *Activity, a activityAttributes) {
	act.ServerStatus = a.Status
	act.Status = ParseActivityStatus(a.Status)
	act.SubStatus = a.SubStatus
	act.DownloadURL = a.DownloadURL

	if t, err := time.Parse(time.RFC3339, a.CreatedDateTime); err == nil {
		act.CreatedAt = t
	}

	if t, err := time.Parse(time.RFC3339, a.CompletedDateTime); err == nil {
		act.CompletedAt = t
	}
}

func (p *Poller) complete(ctx context.Context, act Activity) (*ActivityResult, error) {
	res := &ActivityResult{Activity: act}

	if act.DownloadURL == "" {
		p.logger.Info("device activity completed without a log file",
			slog.String("activity_id", act.ID),
		)

		return res, nil
	}

	data, name, err := p.client.Download(ctx, act.DownloadURL, "OrgDeviceActivity_"+act.ID+".csv")
	if err != nil {
		return nil, fmt.Errorf("axm: downloading log of activity %s: %w", act.ID, err)
	}

	res.Artifact = data
	res.Filename = name

	p.logger.Info("device activity completed",
		slog.String("activity_id", act.ID),
		slog.String("filename", name),
	)

	return res, nil
}

func activityErr(act Activity, polls int, reason, err error) *ActivityError {
	return &ActivityError{
		ActivityID:   act.ID,
		Kind:         act.Kind,
		Status:       act.Status,
		ServerStatus: act.ServerStatus,
		SubStatus:    act.SubStatus,
		Polls:        polls,
		Reason:       reason,
		Err:          err,
	}
}
