package logexport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var headerPattern = regexp.MustCompile(`^\[(.+?)\] \[(.+?)\] (.+)$`)

// Payload fields never copied into the output
var strippedFields = map[string]bool{
	"dt":       true,
	"hostname": true,
	"pid":      true,
}

const maxLineSize = 16 * 1024 * 1024

type ConvertStats struct {
	Records         int
	FormatErrors    int
	MissingPayloads int
	PayloadErrors   int
}

func (s ConvertStats) Errors() int {
	return s.FormatErrors + s.MissingPayloads + s.PayloadErrors
}

type scanState int

const (
	awaitingHeader scanState = iota
	awaitingPayload
)

type header struct {
	time    string
	level   string
	message string
}

// Convert reads the text export from r and writes one JSON object per record
// to w. Malformed blocks are counted and skipped.
func Convert(r io.Reader, w io.Writer) (ConvertStats, error) {
	var stats ConvertStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	out := bufio.NewWriter(w)

	state := awaitingHeader
	var pending header

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if state == awaitingPayload {
			if line == "" {
				continue
			}

			state = awaitingHeader

			if strings.HasPrefix(line, "{") {
				record, err := normalize(pending, line)
				if err != nil {
					stats.PayloadErrors++
					continue
				}

				if _, err := out.Write(record); err != nil {
					return stats, err
				}
				if err := out.WriteByte('\n'); err != nil {
					return stats, err
				}
				stats.Records++
				continue
			}

			// the line may be the header of the next record
			stats.MissingPayloads++
		}

		if !strings.HasPrefix(line, "[") {
			continue
		}

		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			stats.FormatErrors++
			continue
		}

		pending = header{time: m[1], level: m[2], message: m[3]}
		state = awaitingPayload
	}

	if err := scanner.Err(); err != nil {
		return stats, errors.Wrap(err, "unable to read text export")
	}

	if state == awaitingPayload {
		stats.MissingPayloads++
	}

	return stats, out.Flush()
}

// ConvertFile converts src into dst. The output appears under dst only once
// it is complete.
func ConvertFile(src, dst string) (stats ConvertStats, err error) {
	in, err := os.Open(src)
	if err != nil {
		return stats, errors.Wrap(err, "unable to open text export")
	}
	defer in.Close()

	tmp := dst + ".part"

	out, err := os.Create(tmp)
	if err != nil {
		return stats, errors.Wrap(err, "unable to create structured export")
	}

	stats, err = Convert(in, out)
	err = multierr.Append(err, out.Close())
	if err != nil {
		_ = os.Remove(tmp)
		return stats, err
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return stats, errors.Wrap(err, "unable to move structured export in place")
	}

	return stats, nil
}

func normalize(h header, line string) ([]byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("payload is not an object")
	}

	fields := map[string]json.RawMessage{
		"time":    quote(h.time),
		"level":   quote(h.level),
		"message": quote(h.message),
	}

	for k, v := range payload {
		if strippedFields[k] {
			continue
		}
		fields[k] = v
	}

	if dt, ok := payload["dt"]; ok && string(dt) != "null" {
		fields["time"] = dt
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		switch k {
		case "time", "level", "message":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	keys = append([]string{"time", "level", "message"}, keys...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(quote(k))
		buf.WriteByte(':')
		if err := json.Compact(&buf, fields[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func quote(s string) json.RawMessage {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)

	return bytes.TrimRight(buf.Bytes(), "\n")
}
