package certificate

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pavelanni/mockinterview/internal/model"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

const (
	idSuffixLen = 9
	codeLen     = 12
)

// Input is the snapshot copied into a certificate at issuance.
type Input struct {
	Score         int
	UserName      string
	Domain        string
	InterviewType string
}

// Generator issues certificates. Now and Rand may be replaced in tests.
type Generator struct {
	Now  func() time.Time
	Rand io.Reader
}

// New returns a generator backed by the wall clock and crypto/rand.
func New() *Generator {
	return &Generator{Now: time.Now, Rand: rand.Reader}
}

// Issue creates a certificate for a finalized score.
func (g *Generator) Issue(in Input) (*model.Certificate, error) {
	if in.Score < 0 || in.Score > 100 {
		return nil, fmt.Errorf("score %d outside [0,100]", in.Score)
	}
	now := g.Now().UTC()

	suffix, err := randomBase36(g.Rand, idSuffixLen)
	if err != nil {
		return nil, fmt.Errorf("certificate id: %w", err)
	}
	code, err := randomBase36(g.Rand, codeLen)
	if err != nil {
		return nil, fmt.Errorf("verification code: %w", err)
	}

	return &model.Certificate{
		CertificateID:    "CERT-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix,
		VerificationCode: code,
		IssuedAt:         now,
		ValidUntil:       now.AddDate(1, 0, 0),
		Grade:            GradeFor(in.Score),
		Score:            in.Score,
		Domain:           in.Domain,
		InterviewType:    in.InterviewType,
		UserName:         in.UserName,
	}, nil
}

// GradeFor maps an overall score to its letter grade.
func GradeFor(score int) model.Grade {
	switch {
	case score >= 90:
		return model.GradeA
	case score >= 80:
		return model.GradeB
	case score >= 70:
		return model.GradeC
	default:
		return model.GradeD
	}
}

// IsValid reports whether c is still inside its validity window at t.
func IsValid(c *model.Certificate, t time.Time) bool {
	return c != nil && !t.Before(c.IssuedAt) && t.Before(c.ValidUntil)
}

// randomBase36 draws n uppercase base36 characters without modulo bias.
func randomBase36(r io.Reader, n int) (string, error) {
	const limit = 252 // largest multiple of 36 below 256
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	if len(out) != n {
		return "", errors.New("short random read")
	}
	return string(out), nil
}
