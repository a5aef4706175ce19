// Package notifier fans out match notifications to session participants.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agreet/backend/internal/models"
	"github.com/agreet/backend/pkg/push"
)

// Pusher delivers one push to one device token.
type Pusher interface {
	Send(ctx context.Context, deviceToken string, n push.Notification) error
}

// Roster resolves the participants of a session that hold a device token.
type Roster interface {
	ParticipantTokens(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]string, error)
}

// OptionStore resolves the matched option's label.
type OptionStore interface {
	GetOption(ctx context.Context, id uuid.UUID) (*models.Option, error)
}

// TokenStore invalidates device registrations APNs rejected.
type TokenStore interface {
	ClearTokens(ctx context.Context, userIDs []uuid.UUID) error
}

// Notifier sends the "everyone agreed" push after a match transition.
// Delivery is best-effort per device and at-least-once overall; it runs
// strictly after the transition is durably committed and can never roll
// it back.
type Notifier struct {
	pusher  Pusher
	roster  Roster
	options OptionStore
	tokens  TokenStore
	logger  *zap.Logger
}

// New creates a match notifier.
func New(pusher Pusher, roster Roster, options OptionStore, tokens TokenStore, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pusher: pusher, roster: roster, options: options, tokens: tokens, logger: logger}
}

// NotifyMatch pushes the match to every registered participant device.
// Fan-out is one goroutine per device, joined with await-all semantics: a
// failing device never aborts delivery to the others. Tokens APNs reports
// as invalid are cleared so future sessions do not retry them.
//
// An error is returned only when the roster or option cannot be resolved;
// per-device delivery failures are logged and absorbed.
func (n *Notifier) NotifyMatch(ctx context.Context, sessionID, optionID uuid.UUID) error {
	option, err := n.options.GetOption(ctx, optionID)
	if err != nil {
		return fmt.Errorf("resolve option: %w", err)
	}
	tokens, err := n.roster.ParticipantTokens(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resolve roster: %w", err)
	}
	if len(tokens) == 0 {
		n.logger.Info("no registered devices to notify", zap.String("session_id", sessionID.String()))
		return nil
	}

	notification := push.Notification{
		Title: "Match Found!",
		Body:  fmt.Sprintf("Everyone agreed on %s", option.Label),
		Data: map[string]string{
			"session_id": sessionID.String(),
			"option_id":  optionID.String(),
		},
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		invalid []uuid.UUID
		sent    int
	)
	for userID, token := range tokens {
		wg.Add(1)
		go func(userID uuid.UUID, token string) {
			defer wg.Done()
			err := n.pusher.Send(ctx, token, notification)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sent++
			case errors.Is(err, push.ErrBadDeviceToken):
				invalid = append(invalid, userID)
			default:
				n.logger.Warn("push delivery failed",
					zap.String("user_id", userID.String()), zap.Error(err))
			}
		}(userID, token)
	}
	wg.Wait()

	if len(invalid) > 0 {
		if err := n.tokens.ClearTokens(ctx, invalid); err != nil {
			n.logger.Error("failed to clear invalid tokens", zap.Error(err))
		}
	}

	n.logger.Info("match notifications sent",
		zap.String("session_id", sessionID.String()),
		zap.Int("delivered", sent),
		zap.Int("invalidated", len(invalid)))
	return nil
}
