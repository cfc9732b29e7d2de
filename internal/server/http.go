package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	qr "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/boardgames/wonders-server-go/internal/game"
)

const qrSize = 256

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Hub               *Hub
	Manager           *game.Manager
	Issuer            *TokenIssuer
	WebSocketPath     string
	PublicURL         string
	DefaultMaxPlayers int
	Logger            *zap.Logger
}

type api struct {
	RouterOptions
}

// NewRouter builds the lobby HTTP API and mounts the WebSocket endpoint.
func NewRouter(opts RouterOptions) *mux.Router {
	a := &api{RouterOptions: opts}
	r := mux.NewRouter()

	r.Use(cors)

	r.HandleFunc("/health", a.health).Methods("GET")
	r.HandleFunc(opts.WebSocketPath, opts.Hub.ServeWS)
	r.HandleFunc("/auth/token", a.issueToken).Methods("POST")
	r.HandleFunc("/games", a.listGames).Methods("GET")
	r.HandleFunc("/games", a.createGame).Methods("POST")
	r.HandleFunc("/games/{id}", a.getGame).Methods("GET")
	r.HandleFunc("/games/{id}/qr.png", a.gameQR).Methods("GET")

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"games":   a.Manager.GetActiveGameCount(),
		"clients": a.Hub.ClientCount(),
	})
}

type tokenRequest struct {
	Name string `json:"name"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

func (a *api) issueToken(w http.ResponseWriter, r *http.Request) {
	if a.Issuer == nil {
		http.Error(w, "player tokens are not configured", http.StatusNotFound)
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	token, claims, err := a.Issuer.Issue(req.Name)
	if err != nil {
		a.Logger.Error("failed to issue token", zap.Error(err))
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, PlayerID: claims.PlayerID(), Name: claims.Name})
}

func (a *api) listGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Manager.OpenGames())
}

type createGameRequest struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	// CreatorID is honoured only when player tokens are disabled.
	CreatorID string `json:"creatorId"`
}

func (a *api) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	creatorID := req.CreatorID
	if a.Issuer != nil {
		claims, err := identify(a.Issuer, r)
		if err != nil {
			http.Error(w, fmt.Sprintf("unauthorized: %v", err), http.StatusUnauthorized)
			return
		}
		creatorID = claims.PlayerID()
	}
	if creatorID == "" {
		http.Error(w, "creatorId is required", http.StatusBadRequest)
		return
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = a.DefaultMaxPlayers
	}

	g, err := a.Manager.CreateGame(r.Context(), req.Name, creatorID, req.MaxPlayers)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, game.ErrInvalidAction) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusCreated, g.Summary())
}

func (a *api) getGame(w http.ResponseWriter, r *http.Request) {
	g, ok := a.Manager.GetGame(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, g.Summary())
}

// gameQR renders a join link for the game as a PNG.
func (a *api) gameQR(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if _, ok := a.Manager.GetGame(gameID); !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	png, err := qr.Encode(joinURL(a.PublicURL, r.Host, gameID), qr.Medium, qrSize)
	if err != nil {
		http.Error(w, "QR generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func joinURL(publicURL, host, gameID string) string {
	base := strings.TrimSuffix(publicURL, "/")
	if base == "" {
		base = "http://" + host
	}
	return fmt.Sprintf("%s/?game=%s", base, url.QueryEscape(gameID))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
