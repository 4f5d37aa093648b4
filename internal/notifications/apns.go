package notifications

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/sirupsen/logrus"
)

// APNsConfig holds configuration for Apple Push Notification service
type APNsConfig struct {
	KeyPath    string // Path to .p8 key file
	KeyID      string
	TeamID     string
	BundleID   string // dispatcher app bundle ID
	Production bool
}

// Enabled reports whether every required field is set.
func (c APNsConfig) Enabled() bool {
	return c.KeyPath != "" && c.KeyID != "" && c.TeamID != "" && c.BundleID != ""
}

type pusher interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// APNsClient pushes escalations to the dispatcher mobile app.
type APNsClient struct {
	client   pusher
	bundleID string
	log      logrus.FieldLogger
	mu       sync.Mutex
}

// NewAPNsClient returns nil without error when APNs is not configured.
func NewAPNsClient(cfg APNsConfig, log logrus.FieldLogger) (*APNsClient, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if !cfg.Enabled() {
		log.Info("apns: missing configuration, push notifications disabled")
		return nil, nil
	}

	keyBytes, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read APNs key file: %w", err)
	}

	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode APNs key PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs key: %w", err)
	}

	ecdsaKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("APNs key is not an ECDSA private key")
	}

	authToken := &token.Token{
		AuthKey: ecdsaKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(authToken).Development()
	if cfg.Production {
		client = client.Production()
	}

	log.WithFields(logrus.Fields{"production": cfg.Production, "bundle": cfg.BundleID}).Info("apns: client initialized")

	return &APNsClient{client: client, bundleID: cfg.BundleID, log: log}, nil
}

// SendEmergency pushes a time-sensitive alert to one dispatcher device.
func (c *APNsClient) SendEmergency(deviceToken string, a EmergencyAlert) error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := payload.NewPayload().
		AlertTitle(a.Title()).
		AlertBody(a.Body()).
		Sound("default").
		InterruptionLevel(payload.InterruptionLevelTimeSensitive).
		Custom("call_id", a.CallID).
		Custom("emergency_id", a.EmergencyID).
		Custom("emergency_type", a.Type)

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       c.bundleID,
		Payload:     p,
		Priority:    apns2.PriorityHigh,
		Expiration:  time.Now().Add(time.Hour),
	}

	res, err := c.client.Push(notification)
	if err != nil {
		return fmt.Errorf("apns: push: %w", err)
	}
	if res.StatusCode != 200 {
		return fmt.Errorf("APNs rejected notification: %s", res.Reason)
	}

	c.log.WithField("device", shortToken(deviceToken)).Debug("apns: emergency alert sent")
	return nil
}

func shortToken(t string) string {
	if len(t) > 16 {
		return t[:16] + "..."
	}
	return t
}
