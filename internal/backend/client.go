// Package backend talks to the quiz backend: one GET to join a quiz and one
// POST to record a submission, both authenticated with an API key header.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/exstem-player/internal/model"
)

var (
	// ErrQuizUnavailable means the backend refused the join (inactive or unknown quiz).
	ErrQuizUnavailable = errors.New("quiz unavailable")
	// ErrRequest wraps transport failures and unexpected statuses.
	ErrRequest = errors.New("backend request failed")
)

const apiKeyHeader = "X-API-KEY"

// Client is the HTTP implementation of the session's backend contract.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client. A nil httpClient uses a client with the given timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// quizPayload mirrors the backend's join response.
type quizPayload struct {
	Quiz struct {
		Title            string          `json:"quizTitle"`
		Timer            bool            `json:"timer"`
		TimePerQ         json.RawMessage `json:"timePerQ"`
		TimePerStudent   json.RawMessage `json:"timePerStudent"`
		ShowInstantScore bool            `json:"showInstantScore"`
		SectionSize      int             `json:"sectionSize"`
	} `json:"quiz"`
	Questions []questionPayload `json:"questions"`
}

type questionPayload struct {
	Question   string `json:"question"`
	Opt1       string `json:"opt1"`
	Opt2       string `json:"opt2"`
	Opt3       string `json:"opt3"`
	Opt4       string `json:"opt4"`
	CorrectOpt string `json:"correctOpt"`
}

type submitPayload struct {
	QuizID          any    `json:"quizId"`
	ParticipantName string `json:"participantName"`
	Score           string `json:"score"`
	OutOf           string `json:"outOf"`
	Email           string `json:"email"`
	StudentClass    string `json:"studentClass"`
	Division        string `json:"division"`
	RollNo          string `json:"rollNo"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Join fetches the quiz for a participant. The section size in the returned
// config is zero unless the backend dictates one.
func (c *Client) Join(ctx context.Context, quizID, participantName string) (*model.Quiz, error) {
	reqURL := fmt.Sprintf("%s/Play/%s/%s", c.baseURL, url.PathEscape(quizID), url.PathEscape(participantName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("%w: %s", ErrQuizUnavailable, readMessage(resp.Body, resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrRequest, readMessage(resp.Body, resp.Status))
	}

	var payload quizPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode quiz: %v", ErrRequest, err)
	}

	return payload.toQuiz(quizID), nil
}

// Submit posts the submission. Any 2xx is an acknowledged write; otherwise
// the backend's message is returned verbatim inside the error.
func (c *Client) Submit(ctx context.Context, sub model.Submission) error {
	body, err := json.Marshal(submitPayload{
		QuizID:          wireQuizID(sub.QuizID),
		ParticipantName: sub.ParticipantName,
		Score:           strconv.Itoa(sub.Score),
		OutOf:           strconv.Itoa(sub.OutOf),
		Email:           sub.Email,
		StudentClass:    sub.StudentClass,
		Division:        sub.Division,
		RollNo:          sub.RollNo,
	})
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Play/Submit", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrRequest, readMessage(resp.Body, "submission failed"))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p quizPayload) toQuiz(quizID string) *model.Quiz {
	quiz := &model.Quiz{
		ID:     quizID,
		Title:  p.Quiz.Title,
		Active: true,
		Config: model.SessionConfig{
			SectionSize:         p.Quiz.SectionSize,
			RevealScoreOnSubmit: p.Quiz.ShowInstantScore,
		},
		Questions: make([]model.Question, 0, len(p.Questions)),
	}

	if minutes := looseInt(p.Quiz.TimePerQ); p.Quiz.Timer && minutes > 0 {
		seconds := minutes * 60
		quiz.Config.SectionTimerSeconds = &seconds
	}
	if minutes := looseInt(p.Quiz.TimePerStudent); minutes > 0 {
		quiz.Config.AccessWindowMinutes = &minutes
	}

	for i, q := range p.Questions {
		quiz.Questions = append(quiz.Questions, model.Question{
			Index:  i,
			Prompt: q.Question,
			Options: [4]model.Option{
				{Key: model.Opt1, Text: q.Opt1},
				{Key: model.Opt2, Text: q.Opt2},
				{Key: model.Opt3, Text: q.Opt3},
				{Key: model.Opt4, Text: q.Opt4},
			},
			CorrectKeyEncoded: q.CorrectOpt,
		})
	}
	return quiz
}

// looseInt accepts a JSON number or a numeric string, returning 0 otherwise.
func looseInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0
		}
		v = int64(f)
	}
	return int(v)
}

func wireQuizID(id string) any {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return id
}

func readMessage(body io.Reader, fallback string) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(raw) == 0 {
		return fallback
	}
	var payload errorPayload
	if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return fallback
}
