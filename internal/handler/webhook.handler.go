package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"broadcast-service/internal/usecase"
	"broadcast-service/pkg/cache"
	"broadcast-service/pkg/response"
)

const dedupeTTL = 24 * time.Hour

type WebhookHandler struct {
	inbound *usecase.InboundUsecase
	cache   *cache.Cache
	logger  *zap.Logger
}

func NewWebhookHandler(inbound *usecase.InboundUsecase, c *cache.Cache, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{inbound: inbound, cache: c, logger: logger}
}

// HandleInbound receives the provider's inbound-message callback. The
// provider retries on timeouts, so duplicate message IDs are dropped and
// the handler always answers 2xx once the form parses.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.Error(w, http.StatusBadRequest, "malformed form payload")
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	sid := r.PostFormValue("MessageSid")
	if from == "" {
		response.Error(w, http.StatusBadRequest, "missing From")
		return
	}

	if sid != "" && h.cache != nil {
		seen, err := h.cache.SeenMessage(r.Context(), sid, dedupeTTL)
		if err != nil {
			// Dedupe backend down: process anyway, a duplicate broadcast
			// beats a dropped one.
			h.logger.Warn("inbound dedupe check failed", zap.Error(err))
		} else if seen {
			h.logger.Info("dropping duplicate inbound message", zap.String("sid", sid))
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	reply, err := h.inbound.HandleInbound(r.Context(), from, body, mediaURLs(r))
	if err != nil {
		h.logger.Error("inbound handling failed", zap.String("sid", sid), zap.Error(err))
	}

	if reply == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	response.Text(w, http.StatusOK, reply)
}

// mediaURLs collects MediaUrl0..MediaUrl{NumMedia-1} form fields.
func mediaURLs(r *http.Request) []string {
	n, err := strconv.Atoi(r.PostFormValue("NumMedia"))
	if err != nil || n <= 0 {
		return nil
	}

	urls := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if u := r.PostFormValue(fmt.Sprintf("MediaUrl%d", i)); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func (h *WebhookHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.inbound.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats lookup failed", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	response.JSON(w, http.StatusOK, stats)
}

func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"service": "broadcast", "status": "ok"})
}
