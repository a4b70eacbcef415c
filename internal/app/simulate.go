package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"strata-netmon/internal/alerting"
	"strata-netmon/internal/model"
)

// NotifyTest sends a synthetic failing notification for domain through the
// configured channel.
func (a *App) NotifyTest(ctx context.Context, domain model.Domain) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	if !domain.Valid() {
		return fmt.Errorf("unknown domain %q", domain)
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured")
	}

	now := time.Now().UTC()
	note := alerting.Notification{
		Domain:    domain,
		Kind:      alerting.KindFailing,
		Failures:  a.Config.Alerting.FailureThreshold,
		LastError: "test notification",
		Since:     now,
		At:        now,
	}
	if err := notifier.Notify(ctx, note); err != nil {
		return err
	}
	a.Logger.Info().Str("domain", string(domain)).Msg("test notification sent")
	return nil
}
