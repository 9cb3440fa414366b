package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"saliency-viz/internal/domain/entity"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 7}, f.err
}

func TestPublisher_SendsVideo(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output.avi")
	require.NoError(t, os.WriteFile(out, []byte("avi"), 0o644))

	s := &fakeSender{}
	p := &Publisher{api: s, chatID: 42, logger: zap.NewNop()}
	err := p.Publish(context.Background(), &entity.RenderResult{RunID: "abc", Output: out, Total: 3, Rendered: 3})
	require.NoError(t, err)
	require.Len(t, s.sent, 1)

	video, ok := s.sent[0].(tgbotapi.VideoConfig)
	require.True(t, ok)
	require.Equal(t, int64(42), video.ChatID)
	require.Equal(t, tgbotapi.FilePath(out), video.File)
	require.Contains(t, video.Caption, "3/3")
	require.Contains(t, video.Caption, "abc")
}

func TestPublisher_MissingFile(t *testing.T) {
	s := &fakeSender{}
	p := &Publisher{api: s, chatID: 42, logger: zap.NewNop()}
	err := p.Publish(context.Background(), &entity.RenderResult{Output: filepath.Join(t.TempDir(), "none.avi")})
	require.Error(t, err)
	require.Empty(t, s.sent)
}

func TestPublisher_SendError(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output.avi")
	require.NoError(t, os.WriteFile(out, []byte("avi"), 0o644))

	p := &Publisher{api: &fakeSender{err: errors.New("flood wait")}, chatID: 42, logger: zap.NewNop()}
	require.Error(t, p.Publish(context.Background(), &entity.RenderResult{Output: out}))
}
