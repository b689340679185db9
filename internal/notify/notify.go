// Package notify sends SMS notifications to guests: reservation
// confirmations, reminders, cancellations, and waitlist-ready alerts.
//
// The production [Twilio] sender posts to the Twilio REST API; [Logged] is
// the no-credentials fallback that records what would have been sent.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hostline-ai/hostline/internal/reserve"
)

// Sender delivers a single SMS message.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// Notifier renders guest-facing messages and hands them to a Sender.
type Notifier struct {
	sender Sender
}

// New wraps a sender.
func New(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Confirmation texts the guest their booking details and confirmation code.
func (n *Notifier) Confirmation(ctx context.Context, r *reserve.Reservation) error {
	area := ""
	if r.AreaPref != "" {
		area = fmt.Sprintf(" (%s)", r.AreaPref)
	}
	msg := fmt.Sprintf(
		"Confirmed! Reservation for %d on %s%s. Confirmation code: %s. We look forward to seeing you, %s!",
		r.PartySize, r.StartTime.Format("Monday, January 2 at 3:04 PM"), area,
		r.ConfirmationCode, r.GuestName)
	return n.send(ctx, r.Phone, msg)
}

// Reminder texts the guest on the day of their booking.
func (n *Notifier) Reminder(ctx context.Context, r *reserve.Reservation) error {
	msg := fmt.Sprintf(
		"Reminder: Your reservation for %d is today at %s. Confirmation: %s. See you soon!",
		r.PartySize, r.StartTime.Format("3:04 PM"), r.ConfirmationCode)
	return n.send(ctx, r.Phone, msg)
}

// Cancellation confirms a cancelled booking.
func (n *Notifier) Cancellation(ctx context.Context, r *reserve.Reservation) error {
	msg := fmt.Sprintf(
		"Your reservation (%s) has been cancelled. We hope to see you another time!",
		r.ConfirmationCode)
	return n.send(ctx, r.Phone, msg)
}

// WaitlistReady tells a waiting party their table is up.
func (n *Notifier) WaitlistReady(ctx context.Context, guestName, phone, restaurantName string) error {
	msg := fmt.Sprintf(
		"Hi %s! Great news - your table at %s is ready! Please check in with the host within 10 minutes.",
		guestName, restaurantName)
	return n.send(ctx, phone, msg)
}

func (n *Notifier) send(ctx context.Context, phone, msg string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return n.sender.Send(ctx, formatE164(phone), msg)
}

// formatE164 normalises a phone number for delivery. Ten digits are assumed
// to be US numbers.
func formatE164(phone string) string {
	var digits strings.Builder
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d
	default:
		return "+" + d
	}
}
