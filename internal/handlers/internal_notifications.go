package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/requestctx"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

const maxPushEnvelopeSize = 256 * 1024

// NotificationDecoder turns a Pub/Sub push body into a queued notification job.
type NotificationDecoder func(body []byte) (services.NotificationJob, error)

// InternalNotificationHandlers receives notification jobs from the Pub/Sub push subscription.
type InternalNotificationHandlers struct {
	deliverer services.NotificationDeliverer
	decode    NotificationDecoder
}

// NewInternalNotificationHandlers constructs the push delivery endpoint.
func NewInternalNotificationHandlers(deliverer services.NotificationDeliverer, decode NotificationDecoder) *InternalNotificationHandlers {
	return &InternalNotificationHandlers{
		deliverer: deliverer,
		decode:    decode,
	}
}

// Routes registers /notifications:deliver under the internal group.
func (h *InternalNotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/notifications:deliver", h.deliver)
}

// deliver acknowledges malformed envelopes with 204 so Pub/Sub stops redelivering them;
// transient delivery failures return 500 to trigger a retry.
func (h *InternalNotificationHandlers) deliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deliverer == nil || h.decode == nil {
		writeServiceUnavailable(ctx, w, "notification")
		return
	}
	logger := requestctx.Logger(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushEnvelopeSize))
	if err != nil {
		writeBadRequest(ctx, w, "unable to read request body")
		return
	}
	job, err := h.decode(body)
	if err != nil {
		logger.Warn("dropping malformed notification envelope", zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.deliverer.Deliver(ctx, job); err != nil {
		if isPermanentDeliveryError(err) {
			logger.Warn("notification job not deliverable",
				zap.String("job_id", job.ID),
				zap.String("order_id", job.OrderID),
				zap.Error(err),
			)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		logger.Error("notification delivery failed",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.Error(err),
		)
		httpx.WriteError(ctx, w, httpx.NewError("notification_delivery_failed", "notification delivery failed", http.StatusInternalServerError))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// isPermanentDeliveryError reports failures that a redelivery cannot fix.
func isPermanentDeliveryError(err error) bool {
	if errors.Is(err, services.ErrNotificationUnknownJob) {
		return true
	}
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
