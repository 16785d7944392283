package main

import (
	"context"
	"sync"
	"time"

	"cmonreports/internal/health"
	"cmonreports/internal/logging"
	"cmonreports/internal/refresh"
	"cmonreports/internal/summary"
	"cmonreports/internal/telegram"
	"cmonreports/internal/translate"
)

// notifier reacts to finished refresh cycles: it keeps the health monitor
// current and pushes digests and alerts to Telegram.
//
// Scheduler listeners run inside the cycle, so anything that talks to the
// network is sent from a goroutine.
type notifier struct {
	monitor    *health.Monitor
	tg         *telegram.Client
	translator *translate.Translator
	alertAfter int
	now        func() time.Time

	digestMu sync.Mutex // One digest at a time so dedupe sees them in order
	wg       sync.WaitGroup
}

func newNotifier(monitor *health.Monitor, tg *telegram.Client, tr *translate.Translator, alertAfter int) *notifier {
	return &notifier{
		monitor:    monitor,
		tg:         tg,
		translator: tr,
		alertAfter: alertAfter,
		now:        time.Now,
	}
}

// applied handles a successful cycle.
func (n *notifier) applied(snap refresh.Snapshot) {
	n.monitor.UpdateFetchStatus(len(snap.Complaints), snap.Truncated)
	if snap.Truncated {
		logging.Warn().
			Int("collected", len(snap.Complaints)).
			Int("reported_total", snap.Totals.TotalComplaints).
			Msg("⚠️  Complaint collection hit the page limit, analytics cover a partial set")
	}

	if n.tg == nil {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.sendDigest(context.Background(), snap)
	}()
}

func (n *notifier) sendDigest(ctx context.Context, snap refresh.Snapshot) {
	n.digestMu.Lock()
	defer n.digestMu.Unlock()

	// The image is rendered from the English insights; the bundled fonts
	// only cover Latin script.
	png, err := summary.RenderReport(snap.Report(n.now()))
	if err != nil {
		logging.Warn().Err(err).Msg("⚠️  Failed to render summary image, sending text only")
		png = nil
	}

	insights, err := n.translator.TranslateInsights(ctx, snap.Analytics.Insights)
	if err != nil {
		logging.Warn().Err(err).Msg("⚠️  Sending untranslated digest")
	}
	snap.Analytics.Insights = insights

	if _, err := n.tg.SendDigest(ctx, snap, png); err != nil {
		logging.Error().Err(err).Msg("❌ Failed to send digest")
	}
}

// failed handles a failed cycle. The alert fires once per failure streak,
// when the streak reaches alertAfter.
func (n *notifier) failed(err error, consecutive int) {
	n.monitor.UpdateFetchError(err)

	if n.tg == nil || consecutive != n.alertAfter {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if alertErr := n.tg.SendCriticalAlert(context.Background(), "Refresh Failure", err.Error(), consecutive); alertErr != nil {
			logging.Error().Err(alertErr).Msg("❌ Failed to send critical alert")
		}
	}()
}

// wait blocks until in-flight notifications finish or ctx ends.
func (n *notifier) wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn().Msg("⚠️  Gave up waiting for notifications")
	}
}
