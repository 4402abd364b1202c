// Package services – AbuseGate
//
// This file implements the anti-abuse gate every public booking submission
// passes before anything is persisted. The gate runs a fixed sequence of
// checks (honeypot, blocked IP, rate window, duplicate window, content
// heuristics) and writes an audit record for each rejection. Rejections are
// reported as *AbuseError so handlers can map them to stable response codes
// without leaking which heuristic fired.
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/danovmusic/go-booking-backend/internal/domain"
	"github.com/danovmusic/go-booking-backend/internal/repo"
)

// Gate defaults, applied when the zero value is used.
const (
	defaultMaxPerWindow    = 3
	defaultRateWindow      = time.Hour
	defaultDuplicateWindow = 10 * time.Minute
	defaultBlockThreshold  = 5
	defaultRejectScore     = 3
)

// suspiciousScore is the content score at which an accepted booking is still
// flagged for operator review.
const suspiciousScore = 3

// AbuseGate screens booking submissions per source IP and content. It keeps a
// lifetime counter per IP and escalates to a sticky block once the counter
// crosses BlockThreshold.
type AbuseGate struct {
	// DB is the GORM handle used for counters and the audit log.
	DB *gorm.DB

	// MaxPerWindow bookings are allowed per IP inside RateWindow.
	MaxPerWindow int
	RateWindow   time.Duration

	// DuplicateWindow collapses resubmissions of the same form.
	DuplicateWindow time.Duration

	// BlockThreshold is the lifetime booking count after which an IP is
	// blocked outright.
	BlockThreshold int

	// RejectScore is the heuristic score at which a submission is rejected
	// as suspicious rather than just flagged.
	RejectScore int

	// now is swappable for tests.
	now func() time.Time
}

func (g *AbuseGate) maxPerWindow() int {
	if g.MaxPerWindow > 0 {
		return g.MaxPerWindow
	}
	return defaultMaxPerWindow
}

func (g *AbuseGate) rateWindow() time.Duration {
	if g.RateWindow > 0 {
		return g.RateWindow
	}
	return defaultRateWindow
}

func (g *AbuseGate) duplicateWindow() time.Duration {
	if g.DuplicateWindow > 0 {
		return g.DuplicateWindow
	}
	return defaultDuplicateWindow
}

func (g *AbuseGate) blockThreshold() int {
	if g.BlockThreshold > 0 {
		return g.BlockThreshold
	}
	return defaultBlockThreshold
}

func (g *AbuseGate) rejectScore() int {
	if g.RejectScore > 0 {
		return g.RejectScore
	}
	return defaultRejectScore
}

func (g *AbuseGate) timeNow() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now().UTC()
}

// Check runs the gate sequence against a submission. On rejection it writes
// an audit record and returns an *AbuseError; audit write failures are logged
// and never mask the rejection itself.
//
// On acceptance it returns the content heuristic score (0 when clean) so the
// caller can persist it on the booking.
func (g *AbuseGate) Check(ctx context.Context, req *SubmitRequest) (int, error) {
	// 1) Sticky per-IP block. The touch also stamps first/last seen for the
	// IP on every attempt, rejected ones included.
	rec, err := repo.TouchAbuseRecord(ctx, g.DB, req.IP)
	if err != nil {
		return 0, err
	}
	if rec.IsBlocked {
		return 0, g.reject(ctx, req, domain.AttemptSuspicious, "ip blocked: "+rec.BlockReason)
	}

	// 2) Rate window.
	since := g.timeNow().Add(-g.rateWindow())
	recent, err := repo.CountBookingsFromIPSince(ctx, g.DB, req.IP, since)
	if err != nil {
		return 0, err
	}
	if recent >= int64(g.maxPerWindow()) {
		return 0, g.reject(ctx, req, domain.AttemptRateLimit,
			fmt.Sprintf("%d bookings in %s", recent, g.rateWindow()))
	}

	// 3) Duplicate submission.
	dupSince := g.timeNow().Add(-g.duplicateWindow())
	dups, err := repo.CountRecentDuplicates(ctx, g.DB, req.IP, req.Email, req.Phone, req.Date, req.Time, dupSince)
	if err != nil {
		return 0, err
	}
	if dups > 0 {
		return 0, g.reject(ctx, req, domain.AttemptDuplicate, "same form within duplicate window")
	}

	// 4) Honeypot: the hidden field is never filled by humans.
	if strings.TrimSpace(req.Website) != "" {
		return 0, g.reject(ctx, req, domain.AttemptHoneypot, "hidden field filled")
	}

	// 5) Content heuristics.
	score, reasons := SpamScore(req.Name, req.Email, req.Phone, req.Message)
	if score >= g.rejectScore() {
		return score, g.reject(ctx, req, domain.AttemptSuspicious, strings.Join(reasons, "; "))
	}
	return score, nil
}

// RecordAccepted bumps the lifetime counter for ip after a booking was
// persisted and applies the sticky block once the threshold is crossed.
// It accepts the handle explicitly so it can join the caller's transaction.
func (g *AbuseGate) RecordAccepted(ctx context.Context, tx *gorm.DB, ip string) error {
	rec, err := repo.IncrementAbuseRecord(ctx, tx, ip)
	if err != nil {
		return err
	}
	if rec.BookingCount > g.blockThreshold() && !rec.IsBlocked {
		return repo.BlockIP(ctx, tx, ip, "too many bookings")
	}
	return nil
}

// ListRecordsPage returns paginated per-IP records for the admin view,
// optionally restricted to blocked IPs.
func (g *AbuseGate) ListRecordsPage(ctx context.Context, blockedOnly bool, page, pageSize int) ([]domain.AbuseRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountAbuseRecords(ctx, g.DB, blockedOnly)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AbuseRecord{}, 0, nil
	}
	items, err := repo.ListAbuseRecordsPage(ctx, g.DB, blockedOnly, (page-1)*pageSize, pageSize)
	return items, total, err
}

// ListAttemptsPage returns paginated audit rows, optionally filtered by kind.
func (g *AbuseGate) ListAttemptsPage(ctx context.Context, kind domain.AttemptKind, page, pageSize int) ([]domain.AttemptLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountAttempts(ctx, g.DB, kind)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AttemptLog{}, 0, nil
	}
	items, err := repo.ListAttemptsPage(ctx, g.DB, kind, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Unblock clears the sticky block on an IP and resets its counter. Unknown
// IPs report repo.ErrNotFound.
func (g *AbuseGate) Unblock(ctx context.Context, ip string) error {
	return repo.UnblockIP(ctx, g.DB, ip)
}

func (g *AbuseGate) reject(ctx context.Context, req *SubmitRequest, kind domain.AttemptKind, detail string) error {
	if _, err := repo.CreateAttempt(ctx, g.DB, req.IP, req.UserAgent, kind, detail); err != nil {
		log.Error().Err(err).Str("ip", req.IP).Str("kind", string(kind)).
			Msg("failed to write attempt audit record")
	}
	return &AbuseError{Kind: kind, Reason: detail}
}

// --- Content heuristics ---
//
// These mirror the patterns the studio actually sees in junk submissions:
// digit-stuffed names, disposable mailboxes, repeated-digit phone numbers,
// link drops and pharmacy keywords in the message.

var (
	urlRE      = regexp.MustCompile(`(?i)\bhttps?://|\bwww\.`)
	digitRunRE = regexp.MustCompile(`\d{8,}`)
)

var disposableDomains = []string{
	"tempmail.", "guerrillamail.", "mailinator.", "10minutemail.",
}

var spamKeywords = []string{
	"viagra", "casino", "lottery", "winner", "congratulations", "click here",
}

// SpamScore rates submission content. Zero means clean; each fired heuristic
// adds its weight and contributes a reason string.
func SpamScore(name, email, phone, message string) (int, []string) {
	score := 0
	var reasons []string
	add := func(n int, reason string) {
		score += n
		reasons = append(reasons, reason)
	}

	// Name: humans rarely need more than a couple of digits or symbols.
	if countDigits(name) > 2 {
		add(1, "name has too many digits")
	}
	if countSpecials(name) > 2 {
		add(1, "name has too many special characters")
	}

	// Email: throwaway domains and long digit runs.
	lowerEmail := strings.ToLower(email)
	for _, d := range disposableDomains {
		if strings.Contains(lowerEmail, d) {
			add(2, "disposable email domain")
			break
		}
	}
	if digitRunRE.MatchString(email) {
		add(1, "email has long digit run")
	}

	// Phone: all-same-digit numbers are autogenerated.
	if distinctDigits(phone) <= 2 && countDigits(phone) >= 5 {
		add(1, "phone has too few distinct digits")
	}

	// Message: link drops, symbol floods, known spam phrases.
	if urlRE.MatchString(message) {
		add(2, "message contains a link")
	}
	if n := len([]rune(message)); n > 0 {
		if float64(countSpecials(message))/float64(n) > 0.30 {
			add(1, "message is mostly special characters")
		}
	}
	lowerMsg := strings.ToLower(message)
	for _, kw := range spamKeywords {
		if strings.Contains(lowerMsg, kw) {
			add(2, "message contains spam keyword")
			break
		}
	}

	return score, reasons
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func countSpecials(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func distinctDigits(s string) int {
	seen := map[rune]struct{}{}
	for _, r := range s {
		if unicode.IsDigit(r) {
			seen[r] = struct{}{}
		}
	}
	return len(seen)
}
