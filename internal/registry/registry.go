// Package registry maintains the remote per-user device list and enforces
// the concurrent-device ceiling.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/docstore"
	"github.com/adlens-labs/adlens-session/internal/model"
	"github.com/adlens-labs/adlens-session/internal/storage"
)

const devicesField = "devices"

// MaxDevicesError is raised when a new device would exceed the ceiling.
// It is distinguishable from generic failures so the UI can show the limit
// and offer device removal.
type MaxDevicesError struct {
	Limit int
}

func (e *MaxDevicesError) Error() string {
	return fmt.Sprintf("maximum of %d devices reached", e.Limit)
}

// Client reads and writes the remote device registry.
//
// The mutation path is a read-modify-write against the document store and is
// not transactional: two devices racing to register can both observe room and
// transiently exceed the ceiling by one. The registry self-corrects on the
// next read-side enforcement; see Remove for the eviction path.
type Client struct {
	docs   docstore.Client
	local  storage.LocalStore
	logger *common.Logger
	max    int
	now    func() time.Time
}

// New constructs a Client. maxDevices falls back to the default ceiling when
// not positive.
func New(docs docstore.Client, local storage.LocalStore, logger *common.Logger, maxDevices int) *Client {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if maxDevices <= 0 {
		maxDevices = model.DefaultMaxDevices
	}
	return &Client{
		docs:   docs,
		local:  local,
		logger: logger,
		max:    maxDevices,
		now:    time.Now,
	}
}

// MaxDevices returns the configured ceiling.
func (c *Client) MaxDevices() int {
	return c.max
}

// RegisterOrTouch registers the device for the user, or updates LastActive
// when the device id is already present. Returns the resulting registry.
// Raises *MaxDevicesError without mutating when a new device would exceed
// the ceiling.
func (c *Client) RegisterOrTouch(ctx context.Context, userID, deviceID, deviceName string) ([]model.DeviceRecord, error) {
	if userID == "" || deviceID == "" {
		return nil, fmt.Errorf("userID and deviceID are required")
	}

	devices, err := c.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range devices {
		if devices[i].ID == deviceID {
			devices[i].LastActive = c.now().UTC()
			found = true
			break
		}
	}
	if !found {
		if len(devices) >= c.max {
			return nil, &MaxDevicesError{Limit: c.max}
		}
		devices = append(devices, model.DeviceRecord{
			ID:         deviceID,
			Name:       deviceName,
			LastActive: c.now().UTC(),
		})
	}

	if err := c.persist(ctx, userID, devices); err != nil {
		return nil, err
	}
	c.mirror(ctx, devices)
	return devices, nil
}

// Remove evicts the device id from the user's registry. Removing an absent
// id is not an error. If the removed device is the caller's own, the caller
// must also clear the local credential.
func (c *Client) Remove(ctx context.Context, userID, deviceID string) error {
	devices, err := c.fetch(ctx, userID)
	if err != nil {
		return err
	}
	filtered := devices[:0]
	for _, d := range devices {
		if d.ID != deviceID {
			filtered = append(filtered, d)
		}
	}
	if err := c.persist(ctx, userID, filtered); err != nil {
		return err
	}
	c.mirror(ctx, filtered)
	return nil
}

// List returns the user's registry, empty (never an error) when no document
// exists yet.
func (c *Client) List(ctx context.Context, userID string) ([]model.DeviceRecord, error) {
	return c.fetch(ctx, userID)
}

func (c *Client) fetch(ctx context.Context, userID string) ([]model.DeviceRecord, error) {
	doc, err := c.docs.GetDocument(ctx, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			return []model.DeviceRecord{}, nil
		}
		return nil, fmt.Errorf("fetch registry: %w", err)
	}
	return decodeDevices(doc)
}

func (c *Client) persist(ctx context.Context, userID string, devices []model.DeviceRecord) error {
	partial := docstore.Document{devicesField: devices}
	err := c.docs.UpdateDocument(ctx, userID, partial)
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		err = c.docs.SetDocument(ctx, userID, partial)
	}
	if err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}

// mirror caches the last fetched registry locally, best effort only.
func (c *Client) mirror(ctx context.Context, devices []model.DeviceRecord) {
	if c.local == nil {
		return
	}
	payload, err := json.Marshal(devices)
	if err != nil {
		return
	}
	if err := c.local.Set(ctx, storage.KeyRegistryMirror, string(payload)); err != nil {
		c.logger.Debug().Err(err).Msg("registry mirror write failed")
	}
}

// decodeDevices tolerates both typed and schemaless document payloads by
// round-tripping through JSON.
func decodeDevices(doc docstore.Document) ([]model.DeviceRecord, error) {
	raw, ok := doc[devicesField]
	if !ok || raw == nil {
		return []model.DeviceRecord{}, nil
	}
	if typed, ok := raw.([]model.DeviceRecord); ok {
		return append([]model.DeviceRecord{}, typed...), nil
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	var devices []model.DeviceRecord
	if err := json.Unmarshal(payload, &devices); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return devices, nil
}
