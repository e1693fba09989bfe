package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vantagehq/vantage/pkg/types"
)

// Notification bundles everything a channel needs to notify one
// contact about one alarm.
type Notification struct {
	Alarm   types.Alarm
	Event   types.Event
	User    types.User
	Contact types.Contact
}

// Channel is one notification transport.
type Channel interface {
	Name() string

	// AcceptsMedium reports whether this channel handles contacts
	// with the given medium tag.
	AcceptsMedium(medium string) bool

	// SanitizeAddress normalizes an address or rejects it. It is
	// called before Notify; Notify may assume a sanitized address.
	SanitizeAddress(address string) (string, error)

	Notify(ctx context.Context, n Notification) error
}

// mediumHasSuffix is how channels claim media: "email" claims both
// "email" and "workEmail".
func mediumHasSuffix(medium, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(medium), suffix)
}

// Engine fans one alarm out to all of a user's contacts.
type Engine struct {
	channels []Channel
}

func NewEngine(channels ...Channel) *Engine {
	return &Engine{channels: channels}
}

// channelFor returns the first channel accepting the medium, nil when
// none does. Registration order decides ties.
func (e *Engine) channelFor(medium string) Channel {
	for _, ch := range e.channels {
		if ch.AcceptsMedium(medium) {
			return ch
		}
	}
	return nil
}

// Dispatch notifies every contact of the user. A contact no channel
// claims is logged and skipped; a failing channel never stops the
// remaining contacts. The joined failures come back as one error.
func (e *Engine) Dispatch(ctx context.Context, alarm types.Alarm, ev types.Event, user types.User) error {
	var failures []error
	for _, contact := range user.Contacts {
		ch := e.channelFor(contact.Medium)
		if ch == nil {
			slog.Warn("dispatch: no channel for contact medium",
				"user", user.ID, "medium", contact.Medium)
			continue
		}
		addr, err := ch.SanitizeAddress(contact.Address)
		if err != nil {
			slog.Warn("dispatch: bad contact address",
				"user", user.ID, "medium", contact.Medium, "channel", ch.Name(), "err", err)
			failures = append(failures, fmt.Errorf("%s %q: %w", ch.Name(), contact.Address, err))
			continue
		}
		n := Notification{Alarm: alarm, Event: ev, User: user, Contact: types.Contact{
			Medium:  contact.Medium,
			Address: addr,
		}}
		if err := ch.Notify(ctx, n); err != nil {
			slog.Error("dispatch: notification failed",
				"user", user.ID, "channel", ch.Name(), "err", err)
			failures = append(failures, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		slog.Info("dispatch: notified",
			"user", user.ID, "channel", ch.Name(), "alarm", alarm.ID)
	}
	return errors.Join(failures...)
}
