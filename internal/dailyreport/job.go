// Package dailyreport runs the scheduled performance report for one ad
// account and handles the inline buttons attached to it.
package dailyreport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adsrocket/adsrocket/internal/commentary"
	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/insights"
	"github.com/adsrocket/adsrocket/internal/logging"
	"github.com/adsrocket/adsrocket/internal/marketing"
	"github.com/adsrocket/adsrocket/internal/performance"
	"github.com/adsrocket/adsrocket/internal/report"
	"github.com/adsrocket/adsrocket/internal/store"
	"github.com/adsrocket/adsrocket/internal/telegram"
	"github.com/adsrocket/adsrocket/internal/telemetry"
	"github.com/adsrocket/adsrocket/internal/window"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	OutcomeSent   = "sent"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

type SummaryFetcher interface {
	AccountSummary(ctx context.Context, accountID string, creds graph.Credentials, r window.Range) (*insights.Summary, error)
}

type TopFetcher interface {
	FetchTopPerformers(ctx context.Context, accountID string, creds graph.Credentials, spec window.Spec, limit int) ([]performance.RankedAd, error)
}

type Sender interface {
	SendMessage(ctx context.Context, chatID string, text string, keyboard *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error
}

type History interface {
	SaveRun(ctx context.Context, run store.Run) error
	LatestCreative(ctx context.Context, adID string) (performance.Creative, error)
}

type Mutator interface {
	SetStatus(ctx context.Context, creds graph.Credentials, input marketing.StatusInput) (*marketing.MutationResult, error)
	AdCreative(ctx context.Context, creds graph.Credentials, adID string) (*performance.Creative, error)
}

var (
	_ Sender  = (*telegram.Client)(nil)
	_ History = (*store.Postgres)(nil)
	_ Mutator = (*marketing.Service)(nil)
)

// Job holds everything one report run needs. Commentary and History are
// optional.
type Job struct {
	AccountID string
	ChatID    string
	Creds     graph.Credentials
	Window    window.Spec
	Limit     int

	Summaries  SummaryFetcher
	Ads        TopFetcher
	Commentary commentary.Summarizer
	Sender     Sender
	History    History
	Marketing  Mutator

	Now     func() time.Time
	NewID   func() string
	Logger  logrus.FieldLogger
	Metrics *telemetry.Metrics
}

type Result struct {
	RunID      string                 `json:"run_id,omitempty"`
	AccountID  string                 `json:"account_id"`
	Since      string                 `json:"since"`
	Until      string                 `json:"until"`
	Outcome    string                 `json:"outcome"`
	Top        []performance.RankedAd `json:"top"`
	Commentary string                 `json:"commentary,omitempty"`
	Summary    *insights.Summary      `json:"summary,omitempty"`
}

// Run builds and sends one report. Graph failures are reported to the chat
// and returned. A failing commentary model or history store does not stop
// the report.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	if err := j.validate(); err != nil {
		return nil, err
	}
	r, err := j.Window.Resolve(j.now())
	if err != nil {
		return nil, err
	}
	log := j.logger().WithFields(logrus.Fields{
		"account_id": j.AccountID,
		"window":     r.String(),
	})
	result := &Result{
		AccountID: j.AccountID,
		Since:     r.SinceDate(),
		Until:     r.UntilDate(),
		Top:       []performance.RankedAd{},
	}

	summary, err := j.Summaries.AccountSummary(ctx, j.AccountID, j.Creds, r)
	if err != nil {
		return nil, j.fail(ctx, log, err)
	}
	result.Summary = summary

	top, err := j.Ads.FetchTopPerformers(ctx, j.AccountID, j.Creds, window.Explicit(r.Since, r.Until), j.Limit)
	if err != nil {
		return nil, j.fail(ctx, log, err)
	}

	if len(top) == 0 {
		if err := j.Sender.SendMessage(ctx, j.ChatID, report.NoAdsText(j.AccountID, r), nil); err != nil {
			j.Metrics.RecordReport(OutcomeFailed)
			return nil, fmt.Errorf("send empty report: %w", err)
		}
		j.Metrics.RecordReport(OutcomeEmpty)
		log.Info("no ads with spend, sent empty report")
		result.Outcome = OutcomeEmpty
		return result, nil
	}
	result.Top = top

	if j.Commentary != nil {
		text, err := j.Commentary.Summarize(ctx, commentary.BuildContext(commentary.Input{
			AccountID: j.AccountID,
			Window:    r,
			Account:   summary.Metrics,
			Top:       top,
		}))
		if err != nil {
			log.WithError(err).Warn("commentary unavailable, sending report without it")
		} else {
			result.Commentary = text
		}
	}

	rendered := report.Build(report.Input{
		AccountID:  j.AccountID,
		Window:     r,
		Account:    summary.Metrics,
		Top:        top,
		Commentary: result.Commentary,
	})
	if err := j.Sender.SendMessage(ctx, j.ChatID, rendered.Text, rendered.Keyboard); err != nil {
		j.Metrics.RecordReport(OutcomeFailed)
		return nil, fmt.Errorf("send report: %w", err)
	}
	result.Outcome = OutcomeSent
	result.RunID = j.newID()
	j.Metrics.RecordReport(OutcomeSent)

	if j.History != nil {
		err := j.History.SaveRun(ctx, store.Run{
			ID:         result.RunID,
			AccountID:  j.AccountID,
			Since:      r.Since,
			Until:      r.Until,
			Commentary: result.Commentary,
			SentAt:     j.now().UTC(),
			Entries:    store.EntriesFrom(top),
		})
		if err != nil {
			log.WithError(err).Error("save report run")
		}
	}

	log.WithFields(logrus.Fields{
		"run_id":  result.RunID,
		"entries": len(top),
	}).Info("daily report sent")
	return result, nil
}

// fail tells the chat why the run stopped and returns err.
func (j *Job) fail(ctx context.Context, log logrus.FieldLogger, err error) error {
	j.Metrics.RecordReport(OutcomeFailed)
	log.WithError(err).Error("daily report failed")
	if sendErr := j.Sender.SendMessage(ctx, j.ChatID, report.ErrorText(j.AccountID, err), nil); sendErr != nil {
		log.WithError(sendErr).Error("send failure notice")
	}
	return err
}

func (j *Job) validate() error {
	switch {
	case strings.TrimSpace(j.AccountID) == "":
		return errors.New("report account id is required")
	case strings.TrimSpace(j.ChatID) == "":
		return errors.New("report chat id is required")
	case j.Summaries == nil || j.Ads == nil:
		return errors.New("report fetchers are required")
	case j.Sender == nil:
		return errors.New("report sender is required")
	}
	return nil
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *Job) newID() string {
	if j.NewID != nil {
		return j.NewID()
	}
	return uuid.NewString()
}

func (j *Job) logger() logrus.FieldLogger {
	if j.Logger == nil {
		return logging.Discard()
	}
	return j.Logger
}
