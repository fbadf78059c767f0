// Package ratings keeps interviewer ratings for generated question sets and
// builds per-session reports.
package ratings

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	apierrors "github.com/skillspeak/interview-proxy/internal/errors"
)

const unknownLevel = "Unknown"

var ErrSessionNotFound = errors.New("Session not found")

type session struct {
	questions []map[string]any
	ratings   map[int]float64
}

// Store is an in-memory map of rating sessions. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*session)}
}

func (s *Store) getOrCreateLocked(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{ratings: make(map[int]float64)}
		s.sessions[id] = sess
	}
	return sess
}

// StoreQuestions replaces the question list of a session, keeping its ratings.
func (s *Store) StoreQuestions(id string, questions []map[string]any) (int, error) {
	if id == "" || questions == nil {
		return 0, apierrors.NewValidationError("Session ID and questions are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(id).questions = questions
	return len(questions), nil
}

// SaveRatings merges ratings, keyed by question index, into a session and
// returns how many questions are rated.
func (s *Store) SaveRatings(id string, ratings map[string]float64) (int, error) {
	if id == "" || ratings == nil {
		return 0, apierrors.NewValidationError("Session ID and ratings are required")
	}

	parsed := make(map[int]float64, len(ratings))
	for key, value := range ratings {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || idx < 0 {
			return 0, apierrors.NewValidationError("Invalid question index %q", key)
		}
		parsed[idx] = value
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	for idx, value := range parsed {
		sess.ratings[idx] = value
	}
	return len(sess.ratings), nil
}

// Summary holds the headline numbers of a report.
type Summary struct {
	TotalQuestions   int     `json:"totalQuestions"`
	TotalRated       int     `json:"totalRated"`
	OverallAverage   float64 `json:"overallAverage"`
	RatingPercentage float64 `json:"ratingPercentage"`
}

// LevelStats aggregates the ratings of one difficulty level.
type LevelStats struct {
	Total      int     `json:"total"`
	Rated      int     `json:"rated"`
	SumRatings float64 `json:"sumRatings"`
	Average    float64 `json:"average"`
}

// Report is the full rating report of a session. Questions keep every field
// they were stored with, plus index, rating and isRated.
type Report struct {
	SessionID      string                 `json:"sessionId"`
	Summary        Summary                `json:"summary"`
	LevelBreakdown map[string]*LevelStats `json:"levelBreakdown"`
	Questions      []map[string]any       `json:"questions"`
}

// Report builds the report for a session.
func (s *Store) Report(id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	r := &Report{
		SessionID:      id,
		LevelBreakdown: make(map[string]*LevelStats),
		Questions:      make([]map[string]any, 0, len(sess.questions)),
	}
	r.Summary.TotalQuestions = len(sess.questions)
	r.Summary.TotalRated = len(sess.ratings)

	if len(sess.ratings) > 0 {
		var sum float64
		for _, v := range sess.ratings {
			sum += v
		}
		r.Summary.OverallAverage = round(sum/float64(len(sess.ratings)), 2)
	}
	if len(sess.questions) > 0 {
		r.Summary.RatingPercentage = round(float64(len(sess.ratings))/float64(len(sess.questions))*100, 1)
	}

	for i, q := range sess.questions {
		level := levelOf(q)
		st, ok := r.LevelBreakdown[level]
		if !ok {
			st = &LevelStats{}
			r.LevelBreakdown[level] = st
		}
		st.Total++

		rating, rated := sess.ratings[i]
		if rated {
			st.Rated++
			st.SumRatings += rating
		}

		out := make(map[string]any, len(q)+3)
		for k, v := range q {
			out[k] = v
		}
		out["index"] = i
		out["isRated"] = rated
		if rated {
			out["rating"] = rating
		} else {
			out["rating"] = nil
		}
		r.Questions = append(r.Questions, out)
	}

	for _, st := range r.LevelBreakdown {
		if st.Rated > 0 {
			st.Average = round(st.SumRatings/float64(st.Rated), 2)
		}
	}
	return r, nil
}

// SessionInfo is one row of the session listing.
type SessionInfo struct {
	SessionID      string  `json:"sessionId"`
	TotalQuestions int     `json:"totalQuestions"`
	TotalRated     int     `json:"totalRated"`
	Progress       float64 `json:"progress"`
}

// Sessions lists all sessions ordered by id.
func (s *Store) Sessions() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionInfo, 0, len(s.sessions))
	for id, sess := range s.sessions {
		info := SessionInfo{
			SessionID:      id,
			TotalQuestions: len(sess.questions),
			TotalRated:     len(sess.ratings),
		}
		if info.TotalQuestions > 0 {
			info.Progress = round(float64(info.TotalRated)/float64(info.TotalQuestions)*100, 1)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// levelOf returns the question's difficulty, then level, then "Unknown".
// Zero values count as missing.
func levelOf(q map[string]any) string {
	for _, key := range []string{"difficulty", "level"} {
		switch v := q[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		case bool:
			if v {
				return "true"
			}
		}
	}
	return unknownLevel
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
