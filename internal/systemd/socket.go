package systemd

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// Listener names expected in ktime.socket via FileDescriptorName=
const (
	APIListenerName     = "api"
	MetricsListenerName = "metrics"
)

// Listeners holds all systemd-activated listeners
type Listeners struct {
	API       net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors.
// Returns nil listeners if not running under socket activation.
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	// Check if systemd socket activation is available
	fds := activation.Files(false) // false = don't unset env vars
	if len(fds) == 0 {
		return listeners, nil
	}

	listeners.Activated = true

	// Named listeners require systemd 227+
	listenersMap, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	listeners.API = first(listenersMap[APIListenerName])
	listeners.Metrics = first(listenersMap[MetricsListenerName])

	return listeners, nil
}

func first(lns []net.Listener) net.Listener {
	if len(lns) == 0 {
		return nil
	}
	return lns[0]
}

// NotifyReady sends READY=1 notification to systemd
// This tells systemd that the service has finished starting up
func NotifyReady() error {
	// sent is false when not running under systemd, which is not an error
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1 notification to systemd
// This tells systemd that the service is shutting down
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// RunWatchdog pings the systemd watchdog at half the configured interval
// until ctx is done. It returns immediately when no watchdog is configured.
func RunWatchdog(ctx context.Context, logger zerolog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read systemd watchdog settings")
		return
	}
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	logger.Debug().Dur("interval", interval).Msg("systemd watchdog enabled")

	for {
		select {
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn().Err(err).Msg("Failed to send sd_notify watchdog")
			}
		case <-ctx.Done():
			return
		}
	}
}

// IsSystemdService returns true if running as a systemd service
func IsSystemdService() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
