// Package tmtb calls the terminology/translation-memory matching service.
// Requests are signed with MD5(secret + unix timestamp); responses arrive in a
// retcode envelope where zero means success.
package tmtb

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/loceval/loceval/internal/config"
)

// APIError is a non-zero retcode from the service.
type APIError struct {
	Retcode int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tmtb api error (retcode %d): %s", e.Retcode, e.Message)
}

// Match is one translation-memory or term-base hit.
type Match struct {
	Type            string `json:"type"`
	BaseID          int    `json:"baseId"`
	ID              string `json:"id"`
	SrcLangContent  string `json:"srcLangContent"`
	DestLangContent string `json:"destLangContent"`
	MatchRate       int    `json:"matchRate"`
}

type MatchRequest struct {
	DataID  string `json:"dataId"`
	Project string `json:"project"`
	TextID  string `json:"textId"`
	SrcText string `json:"srcText"`
	SrcLang string `json:"srcLang"`
	TarLang string `json:"tarLang"`
}

type signedPayload struct {
	MatchRequest
	Sign      string `json:"sign"`
	Timestamp int64  `json:"timestamp"`
}

type envelope struct {
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
	Data    struct {
		List []Match `json:"list"`
	} `json:"data"`
}

const (
	defaultSrcLang = "CHS"
	maxAttempts    = 3
)

type Client struct {
	baseURL        string
	secret         string
	defaultProject string
	httpClient     *http.Client
	logger         *slog.Logger
	now            func() time.Time
}

func NewClient(cfg config.TMTBConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		secret:         cfg.Secret,
		defaultProject: cfg.Project,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         logger,
		now:            time.Now,
	}
}

// signature is MD5 over the secret concatenated with the decimal timestamp,
// lowercase hex.
func (c *Client) signature(timestamp int64) string {
	sum := md5.Sum([]byte(c.secret + strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(sum[:])
}

// MatchResources posts one match request. Transport failures and 5xx
// responses are retried; a non-zero retcode is not.
func (c *Client) MatchResources(ctx context.Context, req MatchRequest) ([]Match, error) {
	if req.Project == "" {
		req.Project = c.defaultProject
	}
	if req.Project == "" {
		return nil, fmt.Errorf("tmtb: project is required")
	}
	if req.SrcText == "" || req.SrcLang == "" || req.TarLang == "" {
		return nil, fmt.Errorf("tmtb: srcText, srcLang, and tarLang are required")
	}

	timestamp := c.now().Unix()
	payload := signedPayload{
		MatchRequest: req,
		Sign:         c.signature(timestamp),
		Timestamp:    timestamp,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tmtb payload: %w", err)
	}

	var matches []Match
	err = retry.Do(
		func() error {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return fmt.Errorf("tmtb request: %w", err)
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read tmtb response: %w", err)
			}
			if resp.StatusCode >= 500 {
				return fmt.Errorf("tmtb request failed: %s", resp.Status)
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("tmtb request failed: %s", resp.Status))
			}

			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode tmtb response: %w", err))
			}
			if env.Retcode != 0 {
				return retry.Unrecoverable(&APIError{Retcode: env.Retcode, Message: env.Message})
			}
			matches = env.Data.List
			return nil
		},
		retry.Attempts(maxAttempts),
		retry.Context(ctx),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Lookup adapts match results into the JSON list strings substituted into the
// evaluation user prompt: term-base hits as terminology, translation-memory
// hits as similar translations.
func (c *Client) Lookup(ctx context.Context, sourceText, language string) (string, string, error) {
	matches, err := c.MatchResources(ctx, MatchRequest{
		DataID:  strconv.FormatInt(c.now().UnixNano(), 10),
		TextID:  "default",
		SrcText: sourceText,
		SrcLang: defaultSrcLang,
		TarLang: language,
	})
	if err != nil {
		return "", "", err
	}

	var terms, similar []Match
	for _, m := range matches {
		if m.Type == "tm" {
			similar = append(similar, m)
		} else {
			terms = append(terms, m)
		}
	}
	return marshalList(terms), marshalList(similar), nil
}

func marshalList(matches []Match) string {
	if len(matches) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(matches)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
