package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/teleclaw/internal/opencode"
	"github.com/nextlevelbuilder/teleclaw/internal/telegram"
)

// maxImageWidth bounds photo attachments before they become data URLs.
// Telegram already serves downscaled sizes, but documents and originals
// can still be huge.
const maxImageWidth = 1568

// titleTimeout bounds the background title generation call.
const titleTimeout = 30 * time.Second

// submitPrompt turns a Telegram message into an agent prompt: photos and
// voice notes become parts, video is rejected, everything else is text.
func (b *Bridge) submitPrompt(ctx context.Context, msg *telego.Message) {
	threadID := msg.MessageThreadID

	if msg.Video != nil || msg.VideoNote != nil {
		b.reply(ctx, threadID, "🎬 Video is not supported; send text, a photo, or a voice note.")
		return
	}

	var parts []opencode.Part
	text := strings.TrimSpace(msg.Text)

	if len(msg.Photo) > 0 {
		part, err := b.photoPart(ctx, msg.Photo)
		if err != nil {
			b.reply(ctx, threadID, "⚠️ Could not fetch the photo: "+err.Error())
			return
		}
		parts = append(parts, part)
		if caption := strings.TrimSpace(msg.Caption); caption != "" {
			text = caption
		}
	}

	if msg.Voice != nil {
		transcript, err := b.transcribeVoice(ctx, msg.Voice)
		if err != nil {
			b.reply(ctx, threadID, "⚠️ Transcription failed: "+err.Error())
			return
		}
		if transcript == "" {
			// Voice support is off without an API key; stay quiet.
			return
		}
		text = transcript
	}

	if text != "" {
		parts = append(parts, opencode.Part{Type: opencode.PartText, Text: text})
	}
	if len(parts) == 0 {
		return
	}

	id, err := b.ensureSession(ctx)
	if err != nil {
		b.reply(ctx, threadID, "⚠️ No session: "+err.Error())
		return
	}
	if err := b.agent.Prompt(ctx, id, parts, b.modelOverride()); err != nil {
		b.reply(ctx, threadID, "⚠️ Prompt failed: "+err.Error())
		return
	}

	b.maybeGenerateTitle(id, text)
}

// photoPart downloads the largest rendition, downscales wide images, and
// wraps the result as a data-URL file part.
func (b *Bridge) photoPart(ctx context.Context, sizes []telego.PhotoSize) (opencode.Part, error) {
	fileID := sizes[len(sizes)-1].FileID // Telegram orders sizes ascending
	data, err := b.tg.DownloadFile(ctx, fileID)
	if err != nil {
		return opencode.Part{}, err
	}
	mime := "image/jpeg"
	if shrunk, ok := downscaleImage(data); ok {
		data = shrunk
	}
	return opencode.Part{
		Type: opencode.PartFile,
		MIME: mime,
		URL:  telegram.EncodeDataURL(data, mime),
	}, nil
}

// downscaleImage re-encodes images wider than maxImageWidth as JPEG.
// Returns ok=false when the image is small enough or cannot be decoded,
// in which case the original bytes go out unchanged.
func downscaleImage(data []byte) ([]byte, bool) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, false
	}
	if img.Bounds().Dx() <= maxImageWidth {
		return nil, false
	}
	resized := imaging.Resize(img, maxImageWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// transcribeVoice runs the voice note through speech-to-text. Returns
// empty output with no error when transcription is not configured.
func (b *Bridge) transcribeVoice(ctx context.Context, voice *telego.Voice) (string, error) {
	if !b.stt.Enabled() {
		slog.Debug("voice message ignored, transcription disabled")
		return "", nil
	}
	audio, err := b.tg.DownloadFile(ctx, voice.FileID)
	if err != nil {
		return "", err
	}
	return b.stt.Transcribe(ctx, audio, "voice.ogg")
}

// maybeGenerateTitle kicks off a one-time async title for a fresh
// session, renaming both the agent session and the forum topic.
func (b *Bridge) maybeGenerateTitle(sessionID, text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	if b.titled {
		b.mu.Unlock()
		return
	}
	b.titled = true
	b.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
		defer cancel()

		result, err := b.agent.GenerateTitle(ctx, sessionID, text)
		if err != nil || result.Type != "title" || result.Value == "" {
			if err != nil {
				slog.Debug("title generation failed", "session", sessionID, "error", err)
			}
			b.mu.Lock()
			b.titled = false
			b.mu.Unlock()
			return
		}
		if err := b.agent.RenameSession(ctx, sessionID, result.Value); err != nil {
			slog.Warn("session rename failed", "session", sessionID, "error", err)
		}
		if err := b.topics.Rename(ctx, sessionID, result.Value); err != nil {
			slog.Warn("topic rename failed", "session", sessionID, "error", err)
		}
		slog.Info("session titled", "session", sessionID, "title", fmt.Sprintf("%.40s", result.Value))
	}()
}
