package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoAudio means neither a usable pre-rendered file nor a message to
// synthesize was supplied.
var ErrNoAudio = errors.New("no audio source: message or audio file id required")

// Asset is a rendered audio file ready for playback.
type Asset struct {
	// FileID identifies the asset's metadata (tts-<id>.json).
	FileID string
	// Path is the file on disk.
	Path string
	// Ref is what the switch playback application expects: the path
	// without its extension.
	Ref string
}

type metadata struct {
	ID        string    `json:"id"`
	Text      string    `json:"text,omitempty"`
	Voice     string    `json:"voice,omitempty"`
	AudioPath string    `json:"audio_path,omitempty"`
	GSMPath   string    `json:"gsm_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Assets resolves audio for a call: a pre-rendered file by id when it
// exists, otherwise freshly synthesized audio written under dir.
type Assets struct {
	dir   string
	synth Synthesizer
	log   *zap.Logger
}

func NewAssets(dir string, synth Synthesizer, logger *zap.Logger) *Assets {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assets{dir: dir, synth: synth, log: logger.Named("assets")}
}

func (a *Assets) Resolve(ctx context.Context, fileID, message, voice string) (Asset, error) {
	if fileID = strings.TrimSpace(fileID); fileID != "" {
		asset, err := a.lookup(fileID)
		if err == nil {
			return asset, nil
		}
		a.log.Warn("Pre-rendered audio unavailable, synthesizing instead",
			zap.String("file_id", fileID), zap.Error(err))
	}

	if strings.TrimSpace(message) == "" {
		return Asset{}, ErrNoAudio
	}
	return a.render(ctx, message, voice)
}

func (a *Assets) metadataPath(id string) string {
	return filepath.Join(a.dir, fmt.Sprintf("tts-%s.json", id))
}

func (a *Assets) lookup(id string) (Asset, error) {
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return Asset{}, fmt.Errorf("invalid audio file id %q", id)
	}
	b, err := os.ReadFile(a.metadataPath(id))
	if err != nil {
		return Asset{}, fmt.Errorf("read metadata: %w", err)
	}
	var md metadata
	if err := json.Unmarshal(b, &md); err != nil {
		return Asset{}, fmt.Errorf("parse metadata: %w", err)
	}
	path := md.GSMPath
	if path == "" {
		path = md.AudioPath
	}
	if path == "" {
		return Asset{}, fmt.Errorf("metadata for %s has no audio path", id)
	}
	if _, err := os.Stat(path); err != nil {
		return Asset{}, fmt.Errorf("audio file: %w", err)
	}
	return Asset{FileID: id, Path: path, Ref: trimExt(path)}, nil
}

func (a *Assets) render(ctx context.Context, message, voice string) (Asset, error) {
	if a.synth == nil {
		return Asset{}, fmt.Errorf("no synthesizer configured")
	}
	audio, err := a.synth.Synthesize(ctx, message, voice)
	if err != nil {
		return Asset{}, err
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return Asset{}, fmt.Errorf("create sounds dir: %w", err)
	}
	id := uuid.NewString()
	path := filepath.Join(a.dir, fmt.Sprintf("tts-%s.wav", id))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return Asset{}, fmt.Errorf("write audio: %w", err)
	}

	md := metadata{
		ID:        id,
		Text:      message,
		Voice:     voice,
		AudioPath: path,
		CreatedAt: time.Now().UTC(),
	}
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return Asset{}, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(a.metadataPath(id), b, 0o644); err != nil {
		return Asset{}, fmt.Errorf("write metadata: %w", err)
	}

	a.log.Info("Rendered audio asset", zap.String("file_id", id), zap.String("path", path))
	return Asset{FileID: id, Path: path, Ref: trimExt(path)}, nil
}

func trimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
