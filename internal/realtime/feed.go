package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Feed subscribes to the backend realtime socket and forwards every
// nova_ocorrencia event to the dispatcher. It reconnects with exponential
// backoff until ctx is done.
type Feed struct {
	URL        string
	Token      string
	Submitter  Submitter
	Logger     zerolog.Logger
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewFeed(url, token string, sub Submitter, logger zerolog.Logger) *Feed {
	return &Feed{
		URL:        url,
		Token:      token,
		Submitter:  sub,
		Logger:     logger,
		Dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

func (f *Feed) Run(ctx context.Context) {
	backoff := f.MinBackoff
	for {
		connected, err := f.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = f.MinBackoff
		}
		f.Logger.Warn().Err(err).Dur("retry_in", backoff).Str("url", f.URL).Msg("realtime feed disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.MaxBackoff {
			backoff = f.MaxBackoff
		}
	}
}

// session reads one connection until it fails. connected reports whether
// the handshake succeeded.
func (f *Feed) session(ctx context.Context) (connected bool, err error) {
	header := http.Header{}
	if f.Token != "" {
		header.Set("Authorization", "Bearer "+f.Token)
	}
	conn, _, err := f.Dialer.DialContext(ctx, f.URL, header)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	f.Logger.Info().Str("url", f.URL).Msg("realtime feed connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		f.handle(ctx, data)
	}
}

func (f *Feed) handle(ctx context.Context, data []byte) {
	in, ok, err := decodeEvent(data)
	if err != nil {
		f.Logger.Warn().Err(err).Msg("discarding realtime frame")
		return
	}
	if !ok {
		return
	}
	_, _, _ = Ingest(ctx, f.Submitter, f.Logger, "feed", in)
}

var errNotOccurrence = errors.New("frame carries no occurrence")

// decodeEvent accepts {"type"|"event": "nova_ocorrencia", "payload"|"data": {...}},
// the same event with the occurrence fields at the top level, and a bare
// occurrence object. ok is false for other event types.
func decodeEvent(data []byte) (InboundOccurrence, bool, error) {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return InboundOccurrence{}, false, fmt.Errorf("decode frame: %w", err)
	}
	name := stringField(frame, "type", "event")
	body, hasBody := lookup(frame, "payload", "data")
	if name == "" && !hasBody {
		in, err := Normalize(frame)
		return in, err == nil, err
	}
	if name != MsgNewOccurrence {
		return InboundOccurrence{}, false, nil
	}
	if !hasBody {
		// fields sit beside the event name
		flat := make(map[string]any, len(frame))
		for k, v := range frame {
			if k != "type" && k != "event" {
				flat[k] = v
			}
		}
		in, err := Normalize(flat)
		return in, err == nil, err
	}
	raw, isMap := body.(map[string]any)
	if !isMap {
		return InboundOccurrence{}, false, errNotOccurrence
	}
	in, err := Normalize(raw)
	return in, err == nil, err
}
