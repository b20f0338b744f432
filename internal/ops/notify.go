package ops

import (
	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier reports lifecycle state to systemd. Outside a systemd unit
// (no NOTIFY_SOCKET) every call is a no-op.
type Notifier struct {
	notify func(unsetEnv bool, state string) (bool, error)
	logger logger.ILogger
}

// NewNotifier creates a Notifier backed by sd_notify.
func NewNotifier(log logger.ILogger) *Notifier {
	return &Notifier{
		notify: daemon.SdNotify,
		logger: log.SubLogger("Notifier"),
	}
}

// Ready tells systemd the connector is serving. It also ends a reload.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// Reloading tells systemd a configuration reload has begun. Follow it with Ready.
func (n *Notifier) Reloading() { n.send(daemon.SdNotifyReloading) }

// Stopping tells systemd shutdown has begun.
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warningf("sd_notify failed: state=%s, err=%v", state, err)
		return
	}
	if sent {
		n.logger.Debugf("sd_notify sent: state=%s", state)
	}
}
