package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

// Voice gateway adapter: an OpenAI-compatible chat completions endpoint
// that the telephony collaborator points its custom-LLM model at. The
// stream opens with a filler sentence immediately and keeps the line
// alive with status updates while orchestration runs, so the caller
// never sits in silence.

type voiceRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Call struct {
		ID string `json:"id"`
	} `json:"call"`
}

var voiceFillers = []string{
	"I'm accessing the agricultural database for your location...",
	"Let me check the latest satellite and weather data for you...",
	"Checking field conditions...",
}

var voiceStatusUpdates = []string{
	"I am now analyzing the recent satellite imagery for your field.",
	"I am reviewing soil moisture levels to check for water stress.",
	"I am cross-referencing this data with the upcoming weather forecast.",
	"I am formulating the best recommendation for your crop.",
}

const voiceStatusInterval = 5 * time.Second

func (h *Handler) handleVoiceLLM(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userMessage := "Hello"
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" && req.Messages[i].Content != "" {
			userMessage = req.Messages[i].Content
			break
		}
	}
	sessionID := req.Call.ID
	if sessionID == "" {
		sessionID = "default-voice"
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	stream := newChunkStream(w, flusher)
	stream.send(voiceFillers[rand.IntN(len(voiceFillers))]+" ", "")

	query, err := sanitizeQuery(userMessage)
	if err != nil {
		query = "Hello"
	}

	done := make(chan *domain.Response, 1)
	go func() {
		resp, handleErr := h.orch.Handle(r.Context(), domain.Query{
			Text:      query,
			SessionID: sessionID,
		})
		if handleErr != nil {
			slog.Error("Voice orchestration failed", "session_id", sessionID, "error", handleErr)
			done <- nil
			return
		}
		done <- resp
	}()

	ticker := time.NewTicker(voiceStatusInterval)
	defer ticker.Stop()
	statusIdx := 0

	for {
		select {
		case resp := <-done:
			if resp == nil {
				stream.send("I apologize, but I encountered an error while retrieving the data. Please try again. ", "")
			} else {
				stream.send(resp.VoiceText, "")
			}
			stream.send("", "stop")
			stream.finish()
			return
		case <-ticker.C:
			if statusIdx < len(voiceStatusUpdates) {
				stream.send(voiceStatusUpdates[statusIdx]+" ", "")
				statusIdx++
			} else {
				stream.keepAlive()
			}
		case <-r.Context().Done():
			slog.Debug("Voice caller disconnected", "session_id", sessionID)
			return
		}
	}
}

// chunkStream writes OpenAI chat.completion.chunk SSE frames.
type chunkStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	id      string
	created int64
}

func newChunkStream(w http.ResponseWriter, flusher http.Flusher) *chunkStream {
	now := time.Now()
	return &chunkStream{
		w:       w,
		flusher: flusher,
		id:      fmt.Sprintf("chatcmpl-%d", now.UnixNano()),
		created: now.Unix(),
	}
}

func (s *chunkStream) send(text, finishReason string) {
	delta := map[string]string{}
	if text != "" {
		delta["content"] = text
	}
	choice := map[string]any{"index": 0, "delta": delta}
	if finishReason != "" {
		choice["finish_reason"] = finishReason
	}
	chunk := map[string]any{
		"id":      s.id,
		"object":  "chat.completion.chunk",
		"created": s.created,
		"model":   "terramind",
		"choices": []any{choice},
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func (s *chunkStream) keepAlive() {
	fmt.Fprint(s.w, ": keep-alive\n\n")
	s.flusher.Flush()
}

func (s *chunkStream) finish() {
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}
