package feed

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/session"
)

// Replay sends every non-blank line of r as a route payload to the next build
// and ends data sourcing at EOF. It returns the number of payloads sent. On
// error data sourcing is left open; the caller decides whether to abort the
// build.
func Replay(ctx context.Context, mgr *session.Manager, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxPayloadSize)

	sent := 0
	line := 0
	for sc.Scan() {
		line++
		payload := bytes.TrimSpace(sc.Bytes())
		if len(payload) == 0 {
			continue
		}
		if err := mgr.SetDataForSlug(ctx, payload); err != nil {
			return sent, errors.Wrap(err, errors.ErrorTypeProtocol, errors.ErrCodeInvalidRouteData,
				"route feed rejected a payload").WithContext("line", line)
		}
		sent++
	}
	if err := sc.Err(); err != nil {
		return sent, errors.Wrap(err, errors.ErrorTypeIO, errors.ErrCodeReadFailed, "failed to read route feed")
	}
	if err := mgr.DoneSourcingData(ctx); err != nil {
		return sent, err
	}
	return sent, nil
}
