package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"festival-mileage/internal/app"
	"festival-mileage/internal/auth"
	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"festival-mileage/internal/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WSHandler struct {
	svc      Services
	verifier auth.Verifier
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(svc Services, verifier auth.Verifier, opts Options, logger *zap.Logger) *WSHandler {
	if opts.Poll <= 0 {
		opts.Poll = 200 * time.Millisecond
	}
	if opts.Debounce <= 0 {
		opts.Debounce = app.DefaultBallotDebounce
	}
	return &WSHandler{
		svc:      svc,
		verifier: verifier,
		opts:     opts,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Choice int `json:"choice"`
}

type selectionPayload struct {
	Choice   int  `json:"choice"`
	Accepted bool `json:"accepted"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades an authenticated request into a live connection. The
// connection marks the user online for its lifetime, streams the live vote
// view on every poll tick and accepts debounced ballot selections.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, err := auth.Authenticate(r, h.verifier)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	account, err := h.svc.Accounts.Profile(r.Context(), id.UID)
	if errors.Is(err, domain.ErrUserNotFound) {
		account, err = h.svc.Accounts.EnsureProfile(r.Context(), id.UID, id.DisplayName, id.Email)
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := docstore.NewConn(h.svc.Store)
	defer func() {
		// The request context is gone by now; offline must still land.
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := conn.Close(closeCtx); err != nil {
			h.logger.Warn("presence offline write failed", zap.String("uid", id.UID), zap.Error(err))
		}
	}()
	if err := h.svc.Presence.Connect(ctx, conn, id.UID, account.Student); err != nil {
		_ = ws.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	metrics.PresenceConnections.Inc()
	defer metrics.PresenceConnections.Dec()

	views, stopViews, err := h.svc.Votes.Stream(ctx, h.opts.Poll)
	if err != nil {
		_ = ws.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer stopViews()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	viewsDone := make(chan struct{})

	// send is never closed: the debounce timer may still report an error
	// after the read loop has exited.
	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		case <-writerDone:
		}
	}

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := ws.WriteJSON(msg); err != nil {
					h.logger.Debug("ws write error", zap.Error(err))
					ws.Close()
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	submitter := app.NewBallotSubmitter(ctx, h.svc.Votes, id.UID, h.opts.Debounce, func(err error) {
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	})

	go func() {
		defer close(viewsDone)
		for {
			select {
			case view, ok := <-views:
				if !ok {
					return
				}
				submitter.Reset(view.Round, view.Candidates, view.StartedAt)
				if !view.Active {
					submitter.End()
				}
				emit(outboundMessage[any]{Type: "vote", Payload: view})
			case <-closeSignals:
				return
			}
		}
	}()

	emit(outboundMessage[any]{Type: "joined", Payload: account})

	for {
		var inbound inboundMessage
		if err := ws.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}})
				continue
			}
			accepted := submitter.Select(payload.Choice)
			emit(outboundMessage[any]{Type: "selection", Payload: selectionPayload{Choice: payload.Choice, Accepted: accepted}})
		default:
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	// A selection still waiting on the debounce is written before leaving.
	submitter.End()
	close(closeSignals)
	<-viewsDone
	<-writerDone
}
