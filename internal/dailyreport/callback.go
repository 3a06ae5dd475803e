package dailyreport

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"

	"github.com/adsrocket/adsrocket/internal/marketing"
	"github.com/adsrocket/adsrocket/internal/performance"
	"github.com/adsrocket/adsrocket/internal/report"
	"github.com/adsrocket/adsrocket/internal/store"
	"github.com/adsrocket/adsrocket/internal/telegram"
	"github.com/sirupsen/logrus"
)

var ErrForeignChat = errors.New("callback from an unconfigured chat")

// HandleCallback acts on a report button press. The query is always
// answered so the client stops its spinner.
func (j *Job) HandleCallback(ctx context.Context, query telegram.CallbackQuery) error {
	if j.Sender == nil {
		return errors.New("report sender is required")
	}
	if strconv.FormatInt(query.ChatID(), 10) != j.ChatID {
		j.answer(ctx, query.ID, "This chat is not connected.")
		return ErrForeignChat
	}
	callback, err := report.ParseCallback(query.Data)
	if err != nil {
		j.answer(ctx, query.ID, "Unknown action.")
		return err
	}
	log := j.logger().WithFields(logrus.Fields{
		"action": callback.Action,
		"ad_id":  callback.AdID,
	})

	switch callback.Action {
	case report.ActionPause:
		err = j.pause(ctx, query.ID, callback.AdID)
	case report.ActionCreative:
		err = j.creative(ctx, query.ID, callback.AdID)
	}
	if err != nil {
		log.WithError(err).Error("report button failed")
		return err
	}
	log.Info("report button handled")
	return nil
}

func (j *Job) pause(ctx context.Context, queryID string, adID string) error {
	if j.Marketing == nil {
		j.answer(ctx, queryID, "Pausing is not available.")
		return errors.New("marketing service is required to pause ads")
	}
	_, err := j.Marketing.SetStatus(ctx, j.Creds, marketing.StatusInput{
		Level:    marketing.LevelAd,
		EntityID: adID,
		Status:   marketing.StatusPaused,
	})
	if err != nil {
		j.answer(ctx, queryID, "Pause failed.")
		j.send(ctx, report.ErrorText(j.AccountID, err))
		return fmt.Errorf("pause ad %s: %w", adID, err)
	}
	j.answer(ctx, queryID, "Ad paused.")
	j.send(ctx, fmt.Sprintf("⏸ Ad <code>%s</code> paused.", html.EscapeString(adID)))
	return nil
}

func (j *Job) creative(ctx context.Context, queryID string, adID string) error {
	creative, err := j.lookupCreative(ctx, adID)
	if err != nil {
		j.answer(ctx, queryID, "Creative lookup failed.")
		j.send(ctx, report.ErrorText(j.AccountID, err))
		return fmt.Errorf("creative for ad %s: %w", adID, err)
	}
	j.answer(ctx, queryID, "")
	j.send(ctx, CreativeText(adID, creative))
	return nil
}

// lookupCreative prefers the creative stored with the report and falls back
// to a Graph read when there is no history.
func (j *Job) lookupCreative(ctx context.Context, adID string) (performance.Creative, error) {
	if j.History != nil {
		creative, err := j.History.LatestCreative(ctx, adID)
		if err == nil {
			return creative, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			j.logger().WithError(err).WithField("ad_id", adID).Warn("creative history unavailable")
		}
	}
	if j.Marketing == nil {
		return performance.Creative{}, errors.New("no creative source configured")
	}
	creative, err := j.Marketing.AdCreative(ctx, j.Creds, adID)
	if err != nil {
		return performance.Creative{}, err
	}
	return *creative, nil
}

// CreativeText renders the creative link message for one ad.
func CreativeText(adID string, creative performance.Creative) string {
	prefix := fmt.Sprintf("🎬 Creative for ad <code>%s</code>: ", html.EscapeString(adID))
	switch creative.Kind {
	case performance.CreativeVideo:
		return prefix + html.EscapeString(VideoURL(creative.VideoID))
	case performance.CreativeImage:
		link := creative.ImageURL
		if link == "" {
			link = creative.ThumbnailURL
		}
		return prefix + html.EscapeString(link)
	case performance.CreativeInstagram:
		return prefix + "Instagram media <code>" + html.EscapeString(creative.InstagramMediaID) + "</code>"
	default:
		return prefix + "no previewable creative."
	}
}

func VideoURL(videoID string) string {
	return "https://www.facebook.com/watch/?v=" + videoID
}

func (j *Job) answer(ctx context.Context, queryID string, text string) {
	if err := j.Sender.AnswerCallbackQuery(ctx, queryID, text); err != nil {
		j.logger().WithError(err).Warn("answer callback query")
	}
}

func (j *Job) send(ctx context.Context, text string) {
	if err := j.Sender.SendMessage(ctx, j.ChatID, text, nil); err != nil {
		j.logger().WithError(err).Warn("send callback reply")
	}
}
