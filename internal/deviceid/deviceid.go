// Package deviceid produces and persists a durable identifier for the
// current client installation.
package deviceid

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/storage"
	"github.com/google/uuid"
)

// Manager owns device-id generation. GetOrCreate is idempotent: the same
// value is returned across repeated calls within one installation.
type Manager struct {
	local  storage.LocalStore
	logger *common.Logger

	mu     sync.Mutex
	cached string

	now     func() time.Time
	newUUID func() (uuid.UUID, error)
}

// New constructs a Manager backed by the given local store.
func New(local storage.LocalStore, logger *common.Logger) *Manager {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Manager{
		local:   local,
		logger:  logger,
		now:     time.Now,
		newUUID: uuid.NewRandom,
	}
}

// GetOrCreate returns the stable device id, generating and persisting it on
// first use. This path never fails: if strong randomness is unavailable a
// weaker fingerprint-based id is produced instead.
func (m *Manager) GetOrCreate(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != "" {
		return m.cached
	}

	stored, err := m.local.Get(ctx, storage.KeyDeviceID)
	if err == nil && stored != "" {
		m.cached = stored
		return stored
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn().Err(err).Msg("device id read failed, regenerating")
	}

	id := m.generate()
	if err := m.local.Set(ctx, storage.KeyDeviceID, id); err != nil {
		m.logger.Warn().Err(err).Msg("device id persist failed")
	}
	m.cached = id
	return id
}

func (m *Manager) generate() string {
	prefix := m.now().UTC().UnixMilli()
	if u, err := m.newUUID(); err == nil {
		return fmt.Sprintf("%d-%s", prefix, u.String())
	}
	return fmt.Sprintf("%d-%s", prefix, m.fallbackSuffix())
}

// fallbackSuffix builds a deterministic-but-unpredictable suffix from the
// environment when no strong random source is available. Explicitly weaker
// than the UUID path, but stable and collision-resistant enough.
func (m *Manager) fallbackSuffix() string {
	host, _ := os.Hostname()
	parts := []string{
		host,
		runtime.GOOS,
		runtime.GOARCH,
		fmt.Sprintf("%d", os.Getpid()),
		fmt.Sprintf("%d", m.now().UnixNano()),
		fmt.Sprintf("%d", jitterSample()),
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("f%016x", h.Sum64())
}

// jitterSample measures scheduling jitter in nanoseconds as a cheap source
// of entropy for the fallback path.
func jitterSample() int64 {
	start := time.Now()
	runtime.Gosched()
	return time.Since(start).Nanoseconds() + time.Now().UnixNano()%997
}
