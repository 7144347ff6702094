package certificate

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/mockinterview/internal/model"
)

var (
	idPattern   = regexp.MustCompile(`^CERT-\d+-[0-9A-Z]{9}$`)
	codePattern = regexp.MustCompile(`^[0-9A-Z]{12}$`)
)

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score int
		want  model.Grade
	}{
		{100, model.GradeA},
		{90, model.GradeA},
		{89, model.GradeB},
		{80, model.GradeB},
		{79, model.GradeC},
		{70, model.GradeC},
		{69, model.GradeD},
		{0, model.GradeD},
	}
	for _, tt := range tests {
		if got := GradeFor(tt.score); got != tt.want {
			t.Errorf("GradeFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestIssue(t *testing.T) {
	issued := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	g := &Generator{
		Now:  func() time.Time { return issued },
		Rand: New().Rand,
	}

	c, err := g.Issue(Input{Score: 77, UserName: "Ada Lovelace", Domain: "Backend Engineer", InterviewType: "technical"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if !idPattern.MatchString(c.CertificateID) {
		t.Errorf("certificateId %q does not match pattern", c.CertificateID)
	}
	if !strings.HasPrefix(c.CertificateID, "CERT-1773480600000-") {
		t.Errorf("certificateId %q should embed issue time in millis", c.CertificateID)
	}
	if !codePattern.MatchString(c.VerificationCode) {
		t.Errorf("verificationCode %q does not match pattern", c.VerificationCode)
	}
	if strings.Contains(c.CertificateID, c.VerificationCode) {
		t.Error("verification code must be independent of the certificate id")
	}
	if !c.IssuedAt.Equal(issued) {
		t.Errorf("issuedAt = %v", c.IssuedAt)
	}
	if want := time.Date(2027, 3, 14, 9, 30, 0, 0, time.UTC); !c.ValidUntil.Equal(want) {
		t.Errorf("validUntil = %v, want %v", c.ValidUntil, want)
	}
	if c.Grade != model.GradeC || c.Score != 77 {
		t.Errorf("grade/score = %s/%d", c.Grade, c.Score)
	}
	if c.UserName != "Ada Lovelace" || c.Domain != "Backend Engineer" || c.InterviewType != "technical" {
		t.Errorf("snapshot fields = %+v", c)
	}
}

func TestIssueLeapDay(t *testing.T) {
	g := &Generator{Now: func() time.Time { return time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC) }, Rand: New().Rand}
	c, err := g.Issue(Input{Score: 50})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !c.ValidUntil.After(c.IssuedAt) {
		t.Errorf("validUntil %v not after issuedAt %v", c.ValidUntil, c.IssuedAt)
	}
}

func TestIssueRejectsOutOfRangeScore(t *testing.T) {
	for _, s := range []int{-1, 101} {
		if _, err := New().Issue(Input{Score: s}); err == nil {
			t.Errorf("score %d: expected error", s)
		}
	}
}

func TestIssueRandomFailure(t *testing.T) {
	g := &Generator{Now: time.Now, Rand: bytes.NewReader(nil)}
	if _, err := g.Issue(Input{Score: 80}); err == nil {
		t.Error("expected error when randomness source is exhausted")
	}
}

func TestRandomBase36SkipsBiasedBytes(t *testing.T) {
	// 255 and 252 are rejected, 0 -> '0', 35 -> 'Z', 71 -> 'Z'.
	r := bytes.NewReader([]byte{255, 0, 252, 35, 71, 1})
	got, err := randomBase36(r, 3)
	if err != nil {
		t.Fatalf("randomBase36: %v", err)
	}
	if got != "0ZZ" {
		t.Errorf("randomBase36 = %q, want 0ZZ", got)
	}
}

func TestIsValid(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &model.Certificate{IssuedAt: now, ValidUntil: now.AddDate(1, 0, 0)}
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"at issue", now, true},
		{"mid year", now.AddDate(0, 6, 0), true},
		{"expiry instant", now.AddDate(1, 0, 0), false},
		{"before issue", now.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(c, tt.at); got != tt.want {
				t.Errorf("IsValid = %v, want %v", got, tt.want)
			}
		})
	}
	if IsValid(nil, now) {
		t.Error("nil certificate must not be valid")
	}
}
