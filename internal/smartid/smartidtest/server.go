package smartidtest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Server emulates the relying party API for one holder.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	holder   *Holder
	sessions map[string]*fakeSession

	// Initiations records every authentication request body received.
	Initiations []map[string]any
	// Identifiers records the semantics identifiers addressed.
	Identifiers []string

	// PendingPolls is how many polls answer RUNNING before completion.
	PendingPolls int
	// EndResult overrides the completion result (default OK).
	EndResult string
	// TamperSignature flips one bit of the returned signature.
	TamperSignature bool
	// CertOverride replaces the returned certificate value.
	CertOverride string
}

type fakeSession struct {
	digest []byte
	polls  int
}

// NewServer starts a provider emulator signing with holder.
func NewServer(holder *Holder) *Server {
	s := &Server{holder: holder, sessions: make(map[string]*fakeSession)}
	r := chi.NewRouter()
	r.Post("/authentication/etsi/{identifier}", s.handleInitiate)
	r.Get("/session/{sessionID}", s.handlePoll)
	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the relying party base URL with a trailing slash.
func (s *Server) BaseURL() string {
	return s.URL + "/"
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	hash, _ := body["hash"].(string)
	digest, err := base64.StdEncoding.DecodeString(hash)
	if err != nil || len(digest) != 64 {
		http.Error(w, "bad hash", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.Initiations = append(s.Initiations, body)
	s.Identifiers = append(s.Identifiers, chi.URLParam(r, "identifier"))
	s.sessions[id] = &fakeSession{digest: digest}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"sessionID": id})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sess, ok := s.sessions[chi.URLParam(r, "sessionID")]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"title": "Not Found"})
		return
	}
	sess.polls++
	running := sess.polls <= s.PendingPolls
	endResult := s.EndResult
	tamper := s.TamperSignature
	certOverride := s.CertOverride
	s.mu.Unlock()

	if running {
		writeJSON(w, http.StatusOK, map[string]any{"state": "RUNNING"})
		return
	}
	if endResult == "" {
		endResult = "OK"
	}
	if endResult != "OK" {
		writeJSON(w, http.StatusOK, map[string]any{
			"state":  "COMPLETE",
			"result": map[string]string{"endResult": endResult},
		})
		return
	}

	sigB64, err := s.holder.SignDigest(sess.digest)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tamper {
		sigB64 = FlipBit(sigB64, 7)
	}
	cert := s.holder.CertValue()
	if certOverride != "" {
		cert = certOverride
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     "COMPLETE",
		"result":    map[string]string{"endResult": "OK", "documentNumber": "PNOEE-TEST-MOCK-Q"},
		"signature": map[string]string{"value": sigB64, "algorithm": s.holder.Algorithm()},
		"cert":      map[string]string{"value": cert, "certificateLevel": "QUALIFIED"},
	})
}

// FlipBit flips bit of the decoded base64 value and re-encodes it.
func FlipBit(b64 string, bit int) string {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) == 0 {
		return b64
	}
	raw[(bit/8)%len(raw)] ^= 1 << (bit % 8)
	return base64.StdEncoding.EncodeToString(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
