package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/internal/voice"
	"github.com/solmae/animus/pkg/provider/stt"
)

// maxClipBytes bounds one /speech/transcribe upload.
const maxClipBytes = 10 << 20

type voiceGenerateRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleVoiceGenerate(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "speech synthesis is not enabled"))
		return
	}
	var req voiceGenerateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "text is required"))
		return
	}

	snap, err := s.snapshotOf(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	fp := snap.Voice
	if fp == nil {
		derived := voice.Fingerprint(snap.Personality, snap.Faction)
		fp = &derived
	}
	var profile voice.Profile
	if s.voices != nil {
		profile = s.voices.Assign(snap.ID, snap.Role)
	}
	settings := voice.Settings(profile, *fp, snap.Mood)

	ch, err := s.speech.Synthesize(r.Context(), req.Text, settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("X-Agent-ID", snap.ID)
	flusher, _ := w.(http.Flusher)
	for chunk := range ch {
		if _, err := w.Write(chunk); err != nil {
			// Client went away; drain so the synthesizer can finish.
			for range ch {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "speech transcription is not enabled"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxClipBytes+1))
	if err != nil {
		s.writeError(w, r, fault.Wrap(fault.InvalidArgument, "read audio body", err))
		return
	}
	if len(data) == 0 {
		s.writeError(w, r, fault.New(fault.InvalidArgument, "audio body is empty"))
		return
	}
	if len(data) > maxClipBytes {
		s.writeError(w, r, fault.Errorf(fault.InvalidArgument, "audio clip exceeds %d bytes", maxClipBytes))
		return
	}

	transcript, err := s.speech.Transcribe(r.Context(), stt.Clip{
		Data:     data,
		MIMEType: r.Header.Get("Content-Type"),
		Language: r.URL.Query().Get("language"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transcript)
}
