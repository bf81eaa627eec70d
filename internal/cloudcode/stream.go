package cloudcode

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/poemonsense/antigravity-proxy-go/internal/format"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
)

// ReadStream walks a CCA streamGenerateContent SSE response body, decoding
// each "data:" line into a *format.GoogleResponse and delivering it on the
// returned channel in wire order. The channel closes when the body is
// exhausted or ctx-independent read error occurs; resp.Body is closed by
// this function, not the caller. Grounded on the teacher's
// sse_parser.go line-scanning loop, rendered against format's wire types.
func ReadStream(resp *http.Response) (<-chan *format.GoogleResponse, <-chan error) {
	out := make(chan *format.GoogleResponse, 16)
	errs := make(chan error, 1)

	go func() {
		defer resp.Body.Close()
		defer close(out)
		defer close(errs)

		scanner := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 4*1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			var payload string
			switch {
			case strings.HasPrefix(line, "data:"):
				payload = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case strings.HasPrefix(strings.TrimSpace(line), "{"):
				payload = strings.TrimSpace(line)
			default:
				continue
			}
			if payload == "" || payload == "[DONE]" {
				continue
			}

			var envelope format.GoogleResponseEnvelope
			if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
				utils.Debug("[cloudcode] SSE decode warning: %v, raw: %.100s", err, payload)
				continue
			}
			out <- envelope.Unwrap()
		}

		if err := scanner.Err(); err != nil {
			errs <- err
		}
	}()

	return out, errs
}
