package review

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/google/uuid"
)

const (
	TokenTTL      = 7 * 24 * time.Hour
	tokenBytes    = 32
	maxCommentLen = 2000
)

var (
	ErrAlreadyReviewed   = orders.ErrReviewExists
	ErrTokenNotFound     = apperr.NotFound("TOKEN_NOT_FOUND", "order has no review token")
	ErrInvalidToken      = apperr.Validation("INVALID_TOKEN", "review token does not match")
	ErrTokenExpired      = apperr.Validation("TOKEN_EXPIRED", "review token expired")
	ErrOrderNotCompleted = apperr.Conflict("ORDER_NOT_COMPLETED", "only completed orders can be reviewed")
	ErrTokenExists       = apperr.Conflict("TOKEN_EXISTS", "review token already issued")
	ErrInvalidRating     = apperr.Validation("INVALID_RATING", "rating must be between 1 and 5")
)

// Invitations delivers the review link to the customer.
type Invitations interface {
	ReviewInvitation(ctx context.Context, o *orders.Order, reviewURL string, expiresAt time.Time) error
}

type Service struct {
	store   orders.Store
	invites Invitations
	baseURL string
	log     *slog.Logger
	now     func() time.Time
}

func New(store orders.Store, invites Invitations, publicBaseURL string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, invites: invites, baseURL: strings.TrimRight(publicBaseURL, "/"), log: log, now: time.Now}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateToken issues the single review token of a completed order.
func (s *Service) GenerateToken(ctx context.Context, orderID string) (string, time.Time, error) {
	tok, err := newToken()
	if err != nil {
		return "", time.Time{}, err
	}
	exp := s.now().Add(TokenTTL)

	err = s.store.WithTx(ctx, func(tx orders.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		switch {
		case o.Status != orders.StatusCompleted:
			return ErrOrderNotCompleted
		case o.Reviewed:
			return ErrAlreadyReviewed
		case o.ReviewToken != "":
			return ErrTokenExists
		}
		o.ReviewToken = tok
		o.ReviewTokenExpiredAt = &exp
		o.UpdatedAt = s.now()
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

func (s *Service) check(o *orders.Order, token string) error {
	switch {
	case o.Reviewed:
		return ErrAlreadyReviewed
	case o.ReviewToken == "":
		return ErrTokenNotFound
	case subtle.ConstantTimeCompare([]byte(o.ReviewToken), []byte(token)) != 1:
		return ErrInvalidToken
	case o.ReviewTokenExpiredAt == nil || s.now().After(*o.ReviewTokenExpiredAt):
		return ErrTokenExpired
	}
	return nil
}

// ValidateToken fails with one of ORDER_NOT_FOUND, ALREADY_REVIEWED,
// TOKEN_NOT_FOUND, INVALID_TOKEN or TOKEN_EXPIRED.
func (s *Service) ValidateToken(ctx context.Context, orderID, token string) (*orders.Order, error) {
	var out *orders.Order
	err := s.store.WithTx(ctx, func(tx orders.Tx) error {
		o, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.check(o, token); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// CreateReviewFromToken stores the review and burns the token in one
// transaction. UNIQUE(reviews.order_id) settles concurrent submissions.
func (s *Service) CreateReviewFromToken(ctx context.Context, orderID, token string, rating int, comment string) (*orders.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentLen {
		return nil, apperr.Validation("COMMENT_TOO_LONG", fmt.Sprintf("comment exceeds %d characters", maxCommentLen))
	}

	rv := &orders.Review{ID: uuid.NewString(), OrderID: orderID, Rating: rating, Comment: comment}
	err := s.store.WithTx(ctx, func(tx orders.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.check(o, token); err != nil {
			return err
		}
		rv.CreatedAt = s.now()
		if err := tx.Reviews().Insert(ctx, rv); err != nil {
			return err
		}
		o.Reviewed = true
		o.UpdatedAt = rv.CreatedAt
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "review created", "order_id", orderID, "rating", rating)
	return rv, nil
}

func (s *Service) ReviewURL(orderID, token string) string {
	return s.baseURL + "/reviews/" + url.PathEscape(orderID) + "?token=" + url.QueryEscape(token)
}

// OrderChanged invites the customer once an order reaches completed.
func (s *Service) OrderChanged(ctx context.Context, o *orders.Order, _ orders.Status) {
	if o.Status != orders.StatusCompleted || o.Reviewed || o.ReviewToken != "" {
		return
	}
	tok, exp, err := s.GenerateToken(ctx, o.OrderID)
	if err != nil {
		if apperr.CodeOf(err) != ErrTokenExists.Code {
			s.log.WarnContext(ctx, "review token not issued", "order_id", o.OrderID, "err", err)
		}
		return
	}
	if s.invites == nil || o.CustomerEmail == "" {
		return
	}
	if err := s.invites.ReviewInvitation(ctx, o, s.ReviewURL(o.OrderID, tok), exp); err != nil {
		s.log.WarnContext(ctx, "review invitation failed", "order_id", o.OrderID, "err", err)
	}
}
