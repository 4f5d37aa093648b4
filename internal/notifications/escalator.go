package notifications

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

// Escalator fans one emergency out to every configured channel. A failing
// channel does not stop the others.
type Escalator struct {
	discord *Discord
	apns    *APNsClient
	devices []string
	log     logrus.FieldLogger
}

func NewEscalator(discord *Discord, apns *APNsClient, devices []string, log logrus.FieldLogger) *Escalator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	clean := make([]string, 0, len(devices))
	for _, d := range devices {
		if d = strings.TrimSpace(d); d != "" {
			clean = append(clean, d)
		}
	}
	return &Escalator{discord: discord, apns: apns, devices: clean, log: log}
}

// NotifyEmergency returns the joined errors of all channels that failed.
func (e *Escalator) NotifyEmergency(ctx context.Context, a EmergencyAlert) error {
	if e == nil {
		return nil
	}
	log := e.log.WithFields(logrus.Fields{"call_id": a.CallID, "emergency_id": a.EmergencyID})

	var errs []error
	if e.discord.Enabled() {
		if err := e.discord.NotifyEmergency(ctx, a); err != nil {
			log.WithError(err).Warn("notifications: discord escalation failed")
			errs = append(errs, err)
		}
	}
	if e.apns != nil {
		for _, dev := range e.devices {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break
			}
			if err := e.apns.SendEmergency(dev, a); err != nil {
				log.WithError(err).WithField("device", shortToken(dev)).Warn("notifications: push escalation failed")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
