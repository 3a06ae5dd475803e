// Package report renders the daily performance message and the inline
// buttons attached to each ranked ad.
package report

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/insights"
	"github.com/adsrocket/adsrocket/internal/performance"
	"github.com/adsrocket/adsrocket/internal/telegram"
	"github.com/adsrocket/adsrocket/internal/window"
)

const (
	ActionPause    = "pause"
	ActionCreative = "creative"

	// MaxCallbackBytes is the Bot API limit for callback_data.
	MaxCallbackBytes = 64
)

var ErrInvalidCallback = errors.New("invalid callback data")

type Input struct {
	AccountID  string
	Window     window.Range
	Account    insights.Metrics
	Top        []performance.RankedAd
	Commentary string
}

type Report struct {
	Text     string
	Keyboard *telegram.InlineKeyboardMarkup
}

// Build renders the message text in Telegram HTML with every dynamic value
// escaped, plus one row of buttons per ranked ad.
func Build(input Input) Report {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Ads Rocket · act_%s</b>\n", html.EscapeString(input.AccountID))
	fmt.Fprintf(&b, "Window: %s\n", windowLabel(input.Window))
	fmt.Fprintf(&b, "Spend %s · Purchases %d · Revenue %s · ROAS %s\n",
		decimal(input.Account.Spend),
		input.Account.Purchases,
		decimal(input.Account.Revenue),
		decimal(input.Account.ROAS),
	)

	rows := make([][]telegram.InlineKeyboardButton, 0, len(input.Top))
	if len(input.Top) > 0 {
		b.WriteString("\n<b>Top ads</b>\n")
	}
	for i, ad := range input.Top {
		m := ad.Metrics
		fmt.Fprintf(&b, "%d. <b>%s</b>\n", i+1, html.EscapeString(displayName(ad)))
		fmt.Fprintf(&b, "Spend %s · Purchases %d · ROAS %s · CPA %s · CTR %s%%\n",
			decimal(m.Spend),
			m.Purchases,
			decimal(m.ROAS),
			decimal(m.CostPerPurchase),
			decimal(m.CTR),
		)
		if row := buttons(i+1, ad); len(row) > 0 {
			rows = append(rows, row)
		}
	}

	if commentary := strings.TrimSpace(input.Commentary); commentary != "" {
		b.WriteString("\n<b>Commentary</b>\n")
		b.WriteString(html.EscapeString(commentary))
		b.WriteString("\n")
	}

	out := Report{Text: strings.TrimRight(b.String(), "\n")}
	if len(rows) > 0 {
		out.Keyboard = &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
	}
	return out
}

// NoAdsText is sent when no ad had spend in the window.
func NoAdsText(accountID string, r window.Range) string {
	return fmt.Sprintf("<b>Ads Rocket · act_%s</b>\nNo active ads with spend for %s.",
		html.EscapeString(accountID),
		windowLabel(r),
	)
}

// ErrorText describes a failed run for the chat without leaking request
// details.
func ErrorText(accountID string, err error) string {
	header := fmt.Sprintf("<b>Ads Rocket · act_%s</b>\n", html.EscapeString(accountID))
	var apiErr *graph.APIError
	switch {
	case errors.Is(err, graph.ErrRateLimited):
		return header + "Meta rate limit reached. The report will be retried on the next run."
	case errors.Is(err, graph.ErrAuth):
		return header + "Meta rejected the access token or its permissions. Reconnect the profile with <code>adsrocket auth set</code>."
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return header + "Meta API error: " + html.EscapeString(apiErr.Message)
	default:
		return header + "The report could not be built. Check the service logs."
	}
}

type Callback struct {
	Action string
	AdID   string
}

func (c Callback) String() string {
	return c.Action + ":" + c.AdID
}

// ParseCallback validates callback data of the form "<action>:<adID>".
func ParseCallback(data string) (Callback, error) {
	if len(data) > MaxCallbackBytes {
		return Callback{}, fmt.Errorf("%w: longer than %d bytes", ErrInvalidCallback, MaxCallbackBytes)
	}
	action, adID, ok := strings.Cut(data, ":")
	if !ok {
		return Callback{}, fmt.Errorf("%w: %q", ErrInvalidCallback, data)
	}
	switch action {
	case ActionPause, ActionCreative:
	default:
		return Callback{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCallback, action)
	}
	if !validAdID(adID) {
		return Callback{}, fmt.Errorf("%w: bad ad id %q", ErrInvalidCallback, adID)
	}
	return Callback{Action: action, AdID: adID}, nil
}

func buttons(rank int, ad performance.RankedAd) []telegram.InlineKeyboardButton {
	if !validAdID(ad.ID) {
		return nil
	}
	row := []telegram.InlineKeyboardButton{{
		Text:         fmt.Sprintf("⏸ Pause #%d", rank),
		CallbackData: Callback{Action: ActionPause, AdID: ad.ID}.String(),
	}}
	if ad.Creative.Kind != performance.CreativeNone && ad.Creative.Kind != "" {
		row = append(row, telegram.InlineKeyboardButton{
			Text:         fmt.Sprintf("🎬 Creative #%d", rank),
			CallbackData: Callback{Action: ActionCreative, AdID: ad.ID}.String(),
		})
	}
	return row
}

// validAdID accepts one Graph id token that fits in callback data next to
// the longest action.
func validAdID(id string) bool {
	if id == "" || len(ActionCreative)+1+len(id) > MaxCallbackBytes {
		return false
	}
	return !strings.ContainsAny(id, ":/?& \t\n")
}

func displayName(ad performance.RankedAd) string {
	name := strings.Join(strings.Fields(ad.Name), " ")
	if name == "" {
		return "Ad " + ad.ID
	}
	return name
}

func windowLabel(r window.Range) string {
	if r.Days() == 1 {
		return r.SinceDate()
	}
	return fmt.Sprintf("%s to %s", r.SinceDate(), r.UntilDate())
}

func decimal(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
