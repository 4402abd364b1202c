package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danovmusic/go-booking-backend/internal/domain"
)

// Dispatcher composes and sends the four booking message kinds. Every method
// returns the delivery error so the caller can decide what to record, but the
// error is also logged here; callers are expected to treat delivery as best
// effort and never fail a booking over it.
type Dispatcher struct {
	Mailer      Mailer
	StudioEmail string
	// BaseURL is the public origin used to build confirm/reject links,
	// e.g. "https://studio.example.com".
	BaseURL string
}

// BookingReceived acknowledges a new request to the client.
func (d *Dispatcher) BookingReceived(ctx context.Context, b *domain.Booking) error {
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"We received your booking request:\n\n"+
			"  Service:  %s\n"+
			"  Date:     %s\n"+
			"  Time:     %s - %s\n\n"+
			"We will confirm your session shortly. If anything changes, reply to this email.\n",
		b.Name, b.Service, b.Date, b.Time, b.EndTime(),
	)
	return d.send(ctx, b, b.Email, "Your booking request", body)
}

// BookingConfirmed tells the client the session is on.
func (d *Dispatcher) BookingConfirmed(ctx context.Context, b *domain.Booking) error {
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Your booking is confirmed:\n\n"+
			"  Service:  %s\n"+
			"  Date:     %s\n"+
			"  Time:     %s - %s\n\n"+
			"See you at the studio!\n",
		b.Name, b.Service, b.Date, b.Time, b.EndTime(),
	)
	return d.send(ctx, b, b.Email, "Booking confirmed", body)
}

// BookingRejected tells the client the slot could not be given.
func (d *Dispatcher) BookingRejected(ctx context.Context, b *domain.Booking) error {
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Unfortunately we cannot host your session on %s at %s.\n"+
			"Please pick another time on the booking page.\n",
		b.Name, b.Date, b.Time,
	)
	return d.send(ctx, b, b.Email, "Booking update", body)
}

// StudioAlert notifies the studio inbox about a new request, with one-click
// confirm and reject links.
func (d *Dispatcher) StudioAlert(ctx context.Context, b *domain.Booking) error {
	body := fmt.Sprintf(
		"New booking request:\n\n"+
			"  Name:     %s\n"+
			"  Email:    %s\n"+
			"  Phone:    %s\n"+
			"  Service:  %s\n"+
			"  Date:     %s\n"+
			"  Time:     %s - %s\n"+
			"  Message:  %s\n\n"+
			"Confirm: %s/api/v1/bookings/confirm/%s\n"+
			"Reject:  %s/api/v1/bookings/reject/%s\n",
		b.Name, b.Email, b.Phone, b.Service, b.Date, b.Time, b.EndTime(), b.Message,
		d.BaseURL, b.ConfirmToken,
		d.BaseURL, b.RejectToken,
	)
	return d.send(ctx, b, d.StudioEmail, "New booking request", body)
}

func (d *Dispatcher) send(_ context.Context, b *domain.Booking, to, subject, body string) error {
	if d.Mailer == nil || to == "" {
		return nil
	}
	if err := d.Mailer.Send(to, subject, body); err != nil {
		log.Error().
			Err(err).
			Str("booking_id", b.ID).
			Str("subject", subject).
			Msg("email delivery failed")
		return err
	}
	return nil
}
