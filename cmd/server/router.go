package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/markoval/stylist-api/internal/api"
)

// setupRouter wires the HTTP surface: middleware, handlers and routes.
func setupRouter(app *application) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	taskTimeout := time.Duration(app.config.Queue.TaskTimeoutSecs) * time.Second
	analyzeHandler := api.NewAnalyzeHandler(app.entitlements, app.analyzer, app.queue, taskTimeout, app.logger)
	sessionHandler := api.NewSessionHandler(app.entitlements, app.logger)
	paymentHandler := api.NewPaymentHandler(app.payments, app.entitlements, app.params, app.config.Payment.ReturnURL, app.logger)
	llmHandler := api.NewLLMHandler(app.llm, app.logger)
	paramsHandler := api.NewParamsHandler(app.params, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", analyzeHandler.Analyze)
		r.Post("/analyze-sync", analyzeHandler.AnalyzeSync)
		r.Get("/tasks/{id}", analyzeHandler.TaskStatus)

		r.Get("/session/check/{email}", sessionHandler.Check)
		r.Get("/session/styles/{email}", sessionHandler.Styles)
		r.Post("/session/update/{email}", sessionHandler.UpdateContext)
		r.Delete("/session/{email}", sessionHandler.Delete)

		r.Post("/payment/create", paymentHandler.Create)
		r.Post("/payment/webhook", paymentHandler.Webhook)
		r.Get("/payment/status/{id}", paymentHandler.Status)
		r.Get("/payment/price", paymentHandler.Price)

		r.Post("/llm/chat", llmHandler.Chat)
		r.Post("/llm/chat-json", llmHandler.ChatJSON)

		r.Route("/admin/params", func(r chi.Router) {
			r.Get("/{name}", paramsHandler.Get)
			r.Put("/{name}", paramsHandler.Set)
			r.Get("/{name}/history", paramsHandler.History)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
