package health

import (
	"math"

	"github.com/atinyakov/LoginKeeper/internal/models"
)

// Reused is a password shared by two or more websites.
type Reused struct {
	Password string   `json:"-"`
	Sites    []string `json:"sites"`
}

// Summary is the health of a credential set.
type Summary struct {
	Score  int `json:"score"`
	Total  int `json:"total"`
	Weak   int `json:"weak"`
	Reused int `json:"reused"`
	Common int `json:"common"`
	// ReusedSets lists every reused password with its sites.
	ReusedSets []Reused `json:"reused_sets"`
}

// FindWeak returns the credentials scoring below 3.
func FindWeak(creds []models.StoredCredential) []models.StoredCredential {
	var out []models.StoredCredential
	for _, c := range creds {
		if Score(c.Password).Score < 3 {
			out = append(out, c)
		}
	}
	return out
}

// FindReused groups credentials by password and reports the passwords used
// by at least two distinct websites. Sites are listed once each, in the order
// they were first seen; groups are ordered the same way.
func FindReused(creds []models.StoredCredential) []Reused {
	var order []string
	sites := make(map[string][]string)
	for _, c := range creds {
		list, seen := sites[c.Password]
		if !seen {
			order = append(order, c.Password)
		}
		if !contains(list, c.Website) {
			sites[c.Password] = append(list, c.Website)
		}
	}

	var out []Reused
	for _, pw := range order {
		if len(sites[pw]) >= 2 {
			out = append(out, Reused{Password: pw, Sites: sites[pw]})
		}
	}
	return out
}

// reusedCount counts credentials whose password is also used on another
// website.
func reusedCount(creds []models.StoredCredential) int {
	shared := make(map[string]bool)
	for _, r := range FindReused(creds) {
		shared[r.Password] = true
	}
	n := 0
	for _, c := range creds {
		if shared[c.Password] {
			n++
		}
	}
	return n
}

// AggregateScore starts at 100 and subtracts up to 30 for the share of weak
// credentials and up to 40 for the share of reused ones. An empty set scores
// 100.
func AggregateScore(creds []models.StoredCredential) int {
	if len(creds) == 0 {
		return 100
	}
	total := float64(len(creds))
	score := 100.0
	score -= float64(len(FindWeak(creds))) / total * 30
	score -= float64(reusedCount(creds)) / total * 40
	return int(math.Max(0, math.Round(score)))
}

// Analyze computes the full summary.
func Analyze(creds []models.StoredCredential) Summary {
	s := Summary{
		Score:      AggregateScore(creds),
		Total:      len(creds),
		Weak:       len(FindWeak(creds)),
		Reused:     reusedCount(creds),
		ReusedSets: FindReused(creds),
	}
	for _, c := range creds {
		if IsCommon(c.Password) {
			s.Common++
		}
	}
	if s.ReusedSets == nil {
		s.ReusedSets = []Reused{}
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
