package notifier

import (
	"context"
	"log/slog"

	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/registry"
)

// Observer mirrors downloader.Observer so this package does not depend on the manager.
type Observer interface {
	NotifyRowsChanged(indices []int)
	NotifyProgress(index int, p registry.Progress, totalSize string)
	NotifyError(message string)
}

// LogObserver writes every notification to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) NotifyRowsChanged(indices []int) {
	o.logger.Debug("catalog rows changed", "indices", indices)
}

func (o *LogObserver) NotifyProgress(index int, p registry.Progress, totalSize string) {
	if !p.Known {
		o.logger.Debug("download progress", "index", index, "progress", "indeterminate")

		return
	}

	o.logger.Debug("download progress", "index", index, "progress", p.Value, "total_size", totalSize)
}

func (o *LogObserver) NotifyError(message string) {
	o.logger.Warn("user-visible error", "message", message)
}

// Multi fans notifications out to several observers.
type Multi []Observer

func (m Multi) NotifyRowsChanged(indices []int) {
	for _, o := range m {
		o.NotifyRowsChanged(indices)
	}
}

func (m Multi) NotifyProgress(index int, p registry.Progress, totalSize string) {
	for _, o := range m {
		o.NotifyProgress(index, p, totalSize)
	}
}

func (m Multi) NotifyError(message string) {
	for _, o := range m {
		o.NotifyError(message)
	}
}

const webhookQueueSize = 32

// WebhookObserver forwards error messages to a Notifier from a single background worker, so
// callers never wait on the network.
type WebhookObserver struct {
	notifier Notifier
	queue    chan string
}

func NewWebhookObserver(n Notifier) *WebhookObserver {
	return &WebhookObserver{
		notifier: n,
		queue:    make(chan string, webhookQueueSize),
	}
}

func (o *WebhookObserver) NotifyRowsChanged([]int) {}

func (o *WebhookObserver) NotifyProgress(int, registry.Progress, string) {}

// NotifyError queues message, dropping it when the queue is full.
func (o *WebhookObserver) NotifyError(message string) {
	select {
	case o.queue <- message:
	default:
	}
}

// Run delivers queued messages until ctx is done.
func (o *WebhookObserver) Run(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.queue:
			if err := o.notifier.Notify(ctx, msg); err != nil {
				logger.ErrorContext(ctx, "failed to send notification", "err", err)
			}
		}
	}
}
