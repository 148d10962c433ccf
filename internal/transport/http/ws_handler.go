package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"trivia-live/internal/app"
	"trivia-live/internal/domain"
	"trivia-live/internal/session"
)

const sendBuffer = 16

type WSHandler struct {
	service  *app.GameService
	auth     *Authenticator
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, auth *Authenticator, allowedOrigins []string, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		auth:    auth,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return originAllowed(allowedOrigins, r.Header.Get("Origin")) },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type hostingPayload struct {
	SessionID string `json:"sessionId"`
	QuizID    string `json:"quizId"`
}

type gradePayload struct {
	Name    string `json:"name"`
	Correct bool   `json:"correct"`
}

type joinedPayload struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Color     string `json:"color"`
}

type answerPayload struct {
	Text string `json:"text"`
}

type leaderboardPayload struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// ServeHost starts a session for the requested quiz and relays host commands
// until the connection closes, which ends the session.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	timeForQuestion := 0
	if raw := r.URL.Query().Get("time"); raw != "" {
		timeForQuestion, err = strconv.Atoi(raw)
		if err != nil || timeForQuestion <= 0 {
			http.Error(w, "time must be a positive number of seconds", http.StatusBadRequest)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	host, err := h.service.HostQuiz(r.Context(), quizID, timeForQuestion)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	code := host.SessionID()
	log := h.log.With().Str("session", code).Str("user", user).Logger()
	defer func() {
		if err := h.service.EndHosting(context.Background(), code); err != nil {
			log.Warn().Err(err).Msg("end hosting")
		}
	}()

	updates, cancel := host.Updates()
	defer cancel()

	greeting := outboundMessage[any]{Type: "hosting", Payload: hostingPayload{SessionID: code, QuizID: quizID}}
	relay(conn, log, greeting, updates, func(ctx context.Context, in inboundMessage) *outboundMessage[any] {
		var err error
		switch in.Type {
		case "startRound":
			err = host.StartRound(ctx)
		case "nextQuestion":
			err = host.AdvanceQuestion(ctx)
		case "reveal":
			err = host.RevealAnswer(ctx)
		case "hide":
			host.HideAnswer()
		case "finishRound":
			err = host.FinishRound(ctx)
		case "finishGame":
			var board []domain.LeaderboardEntry
			board, err = host.FinishGame(ctx)
			if err == nil {
				return &outboundMessage[any]{Type: "leaderboard", Payload: leaderboardPayload{Entries: board}}
			}
		case "grade":
			var payload gradePayload
			if jsonErr := json.Unmarshal(in.Payload, &payload); jsonErr != nil || payload.Name == "" {
				return errorMessage("invalid grade payload")
			}
			_, err = host.GradeAnswer(ctx, payload.Name, payload.Correct)
		default:
			return errorMessage("unsupported message type")
		}
		if err != nil {
			if !session.IsProgressionError(err) {
				log.Error().Err(err).Str("command", in.Type).Msg("host command failed")
			}
			return errorMessage(err.Error())
		}
		return nil
	})
}

// ServePlay joins a player to a session and relays answers until the
// connection closes. The player record stays in the session.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	name := r.URL.Query().Get("name")
	if sessionID == "" || name == "" {
		http.Error(w, "missing sessionId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	player, err := h.service.Join(r.Context(), sessionID, name)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer player.Close()

	updates, cancel := player.Updates()
	defer cancel()

	view := player.View()
	greeting := outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		SessionID: player.SessionID(),
		Name:      player.Name(),
		Color:     view.Color,
	}}
	log := h.log.With().Str("session", player.SessionID()).Str("player", player.Name()).Logger()
	relay(conn, log, greeting, updates, func(ctx context.Context, in inboundMessage) *outboundMessage[any] {
		if in.Type != "answer" {
			return errorMessage("unsupported message type")
		}
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return errorMessage("invalid answer payload")
		}
		if err := player.SubmitAnswer(ctx, payload.Text); err != nil {
			if !errors.Is(err, domain.ErrEmptyAnswer) && !errors.Is(err, domain.ErrSubmissionClosed) {
				log.Error().Err(err).Msg("submit answer")
			}
			return errorMessage(err.Error())
		}
		return nil
	})
}

// relay owns a connection after the handshake: one goroutine writes, one
// forwards view updates as "state" messages, and the caller's goroutine reads
// commands until the peer goes away.
func relay[T any](conn *websocket.Conn, log zerolog.Logger, greeting outboundMessage[any], updates <-chan T, handle func(context.Context, inboundMessage) *outboundMessage[any]) {
	send := make(chan outboundMessage[any], sendBuffer)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				// keep draining so producers never block on a dead peer
				for range send {
				}
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- greeting

	ctx, cancel := context.WithCancel(context.Background())
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if reply := handle(ctx, inbound); reply != nil {
			send <- *reply
		}
	}
	cancel()

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func errorMessage(msg string) *outboundMessage[any] {
	return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
